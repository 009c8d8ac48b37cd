package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/service"
	"github.com/tallystack/tallyauth/internal/auth/store"
	"github.com/tallystack/tallyauth/pkg/httpx"
)

const defaultActivityLimit = 100

// ActivityHandler serves audit log queries and retention pruning.
type ActivityHandler struct {
	Activity *service.ActivityService
	Store    store.Store
}

type activityEntryResponse struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"account_id,omitempty"`
	Username    string         `json:"username,omitempty"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// HandleQuery handles GET /v1/activity. Supported query parameters:
// account_id, type, from, to (RFC 3339), limit.
func (h *ActivityHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(ctx, h.Store)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	q := r.URL.Query()
	f := domain.ActivityFilter{
		Limit:     defaultActivityLimit,
		AccountID: q.Get("account_id"),
		Type:      domain.ActivityType(q.Get("type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "from must be RFC 3339")
			return
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "to must be RFC 3339")
			return
		}
		f.To = &t
	}

	entries, err := h.Activity.Query(ctx, actor, f)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	out := make([]activityEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityEntryResponse{
			ID:          e.ID,
			AccountID:   e.AccountID,
			Username:    e.Username,
			Type:        string(e.Type),
			Description: e.Description,
			Severity:    string(e.Severity),
			Details:     e.Details,
			CreatedAt:   e.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// HandlePrune handles DELETE /v1/activity?before=<RFC 3339>.
func (h *ActivityHandler) HandlePrune(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(ctx, h.Store)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	before := r.URL.Query().Get("before")
	if before == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "before is required")
		return
	}
	cutoff, err := time.Parse(time.RFC3339, before)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "before must be RFC 3339")
		return
	}

	n, err := h.Activity.Prune(ctx, actor, cutoff)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
