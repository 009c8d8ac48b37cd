package http

import (
	"encoding/json"
	"net/http"

	"github.com/tallystack/tallyauth/internal/auth/service"
	"github.com/tallystack/tallyauth/pkg/httpx"
	"github.com/tallystack/tallyauth/pkg/slogx"
)

// MFAHandler serves TOTP enrollment and teardown for the authenticated
// account.
type MFAHandler struct {
	TOTP *service.TOTPService
}

type totpEnableRequest struct {
	Code string `json:"code"`
}

// HandleEnroll handles POST /v1/mfa/totp/enroll. It returns the pending
// secret and provisioning URI; 2FA stays off until HandleEnable verifies a
// code.
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.UserIDFromContext(ctx)
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	enrollment, err := h.TOTP.GenerateSecret(ctx, accountID)
	if err != nil {
		log.Warn("totp enrollment failed", "account_id", accountID, "err", err)
		writeAuthError(w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"secret": enrollment.Secret,
		"uri":    enrollment.URI,
	})
}

// HandleEnable handles POST /v1/mfa/totp/enable.
func (h *MFAHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID := httpx.UserIDFromContext(ctx)
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	var req totpEnableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.TOTP.Enable(ctx, accountID, req.Code); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles POST /v1/mfa/totp/disable.
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID := httpx.UserIDFromContext(ctx)
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "no_session", "not signed in")
		return
	}

	if err := h.TOTP.Disable(ctx, accountID); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
