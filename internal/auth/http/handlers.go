package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/store"
	"github.com/tallystack/tallyauth/pkg/httpx"
)

// writeError emits the standard error envelope.
func writeError(w http.ResponseWriter, code int, errCode, desc string) {
	httpx.WriteJSON(w, code, map[string]string{
		"error":             errCode,
		"error_description": desc,
	})
}

// writeAuthError maps a domain.AuthError onto the wire. Unknown-account and
// invalid-credentials share one shape so the response cannot be used to
// enumerate accounts; lockout is disclosed on purpose, with the remaining
// time in Retry-After.
func writeAuthError(w http.ResponseWriter, err error) {
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	switch ae.Kind {
	case domain.KindUnknownAccount, domain.KindInvalidCredentials:
		body := map[string]any{
			"error":             "invalid_credentials",
			"error_description": ae.Message,
		}
		if ae.Kind == domain.KindInvalidCredentials && ae.AttemptsRemaining > 0 {
			body["attempts_remaining"] = ae.AttemptsRemaining
		}
		httpx.WriteJSON(w, http.StatusUnauthorized, body)

	case domain.KindAccountLocked:
		secs := int(ae.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
		httpx.WriteJSON(w, http.StatusLocked, map[string]any{
			"error":               "account_locked",
			"error_description":   ae.Message,
			"retry_after_seconds": secs,
		})

	case domain.KindTwoFactorRequired:
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"error":               "two_factor_required",
			"error_description":   ae.Message,
			"two_factor_required": true,
		})

	case domain.KindInvalidTwoFactorCode:
		writeError(w, http.StatusUnauthorized, "invalid_two_factor_code", ae.Message)

	case domain.KindProfileNotFound:
		writeError(w, http.StatusNotFound, "not_found", ae.Message)

	case domain.KindPermissionDenied:
		writeError(w, http.StatusForbidden, "permission_denied", ae.Message)

	case domain.KindGuardUnavailable, domain.KindUpstreamUnavailable:
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", ae.Message)

	default:
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

// requireActor resolves the authenticated caller's profile from the token
// subject injected by the authn middleware.
func requireActor(ctx context.Context, st store.Store) (domain.Profile, bool) {
	id := httpx.UserIDFromContext(ctx)
	if id == "" {
		return domain.Profile{}, false
	}
	p, err := st.Profiles().GetProfileByID(ctx, id)
	if err != nil || !p.Active {
		return domain.Profile{}, false
	}
	return p, true
}
