package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/service"
	"github.com/tallystack/tallyauth/internal/auth/store"
	"github.com/tallystack/tallyauth/pkg/httpx"
	"github.com/tallystack/tallyauth/pkg/slogx"
)

// UsersHandler serves role-gated account administration.
type UsersHandler struct {
	Users *service.UserService
	Store store.Store
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
}

// HandleList handles GET /v1/users.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(ctx, h.Store)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	profiles, err := h.Users.ListUsers(ctx, actor)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	out := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileResponse(p))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

// HandleCreate handles POST /v1/users.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actor, ok := requireActor(ctx, h.Store)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	p, err := h.Users.CreateUser(ctx, actor, service.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     domain.Role(req.Role),
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "conflict", err.Error())
		case errors.Is(err, service.ErrWeakPassword),
			errors.Is(err, service.ErrInvalidRole),
			errors.Is(err, service.ErrInvalidUsername):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			log.Warn("user creation failed", "actor_id", actor.ID, "err", err)
			writeAuthError(w, err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, toProfileResponse(p))
}

// HandleUpdate handles PATCH /v1/users/{id}.
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(ctx, h.Store)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	in := service.UpdateUserInput{
		Email:    req.Email,
		FullName: req.FullName,
		Active:   req.Active,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		in.Role = &role
	}

	p, err := h.Users.UpdateUser(ctx, actor, r.PathValue("id"), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "conflict", err.Error())
		case errors.Is(err, service.ErrInvalidRole):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			writeAuthError(w, err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toProfileResponse(p))
}

// HandleDelete handles DELETE /v1/users/{id}. The default is a soft delete;
// ?hard=true removes the record permanently.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(ctx, h.Store)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	hard := r.URL.Query().Get("hard") == "true"
	if err := h.Users.DeleteUser(ctx, actor, r.PathValue("id"), hard); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnlock handles POST /v1/users/{id}/unlock.
func (h *UsersHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(ctx, h.Store)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	if err := h.Users.UnlockAccount(ctx, actor, r.PathValue("id")); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
