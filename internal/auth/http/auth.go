package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/service"
	"github.com/tallystack/tallyauth/pkg/httpx"
	"github.com/tallystack/tallyauth/pkg/jwtx"
	"github.com/tallystack/tallyauth/pkg/slogx"
)

// AuthHandler serves the credential login flow and session introspection.
type AuthHandler struct {
	Login      *service.LoginService
	Users      *service.UserService
	Sessions   *service.SessionManager
	Signer     *jwtx.Signer
	Issuer     string
	SessionTTL time.Duration
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type twoFactorRequest struct {
	Code string `json:"code"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type profileResponse struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email,omitempty"`
	FullName         string     `json:"full_name,omitempty"`
	Role             string     `json:"role"`
	Active           bool       `json:"active"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type sessionResponse struct {
	AccessToken            string          `json:"access_token,omitempty"`
	TokenType              string          `json:"token_type,omitempty"`
	ExpiresIn              int             `json:"expires_in,omitempty"`
	Profile                profileResponse `json:"profile"`
	PasswordChangeRequired bool            `json:"password_change_required"`
}

func toProfileResponse(p domain.Profile) profileResponse {
	return profileResponse{
		ID:               p.ID,
		Username:         p.Username,
		Email:            p.Email,
		FullName:         p.FullName,
		Role:             string(p.Role),
		Active:           p.Active,
		TwoFactorEnabled: p.TwoFactorEnabled,
		LastLogin:        p.LastLogin,
		CreatedAt:        p.CreatedAt,
	}
}

// HandleLogin handles POST /v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identifier and password are required")
		return
	}

	p, err := h.Login.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		if domain.KindOf(err) == domain.KindTwoFactorRequired {
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"error":               "two_factor_required",
				"error_description":   "two-factor code required",
				"two_factor_required": true,
			})
			return
		}
		log.Info("login rejected", "identifier", req.Identifier, "kind", domain.KindOf(err))
		writeAuthError(w, err)
		return
	}

	h.writeSession(w, p)
}

// HandleVerifyTwoFactor handles POST /v1/auth/2fa/verify.
func (h *AuthHandler) HandleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	p, err := h.Login.VerifyTwoFactor(r.Context(), req.Code)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	h.writeSession(w, p)
}

// HandleLogout handles POST /v1/auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Login.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession handles GET /v1/auth/session. It reports the current
// session state including the degraded-mode flag from reconciliation.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	state := h.Sessions.Snapshot()
	if !state.IsAuthenticated || state.CurrentAccount == nil {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	body := map[string]any{
		"phase":                    string(state.Phase),
		"profile":                  toProfileResponse(*state.CurrentAccount),
		"password_change_required": state.PasswordChangeRequired,
	}
	if state.Error != "" {
		body["warning"] = state.Error
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

// HandleChangePassword handles POST /v1/auth/password.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID := httpx.UserIDFromContext(ctx)
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err := h.Users.ChangePassword(ctx, accountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, "weak_password", err.Error())
			return
		}
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, p domain.Profile) {
	ttl := h.SessionTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}

	claims := jwtx.NewSessionClaims(p.ID, p.Username, string(p.Role), h.Issuer, ttl, time.Now().UTC())
	token, err := h.Signer.Sign(claims)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to issue session token")
		return
	}

	state := h.Sessions.Snapshot()

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		AccessToken:            token,
		TokenType:              "Bearer",
		ExpiresIn:              int(ttl.Seconds()),
		Profile:                toProfileResponse(p),
		PasswordChangeRequired: state.PasswordChangeRequired,
	})
}
