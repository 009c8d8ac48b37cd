package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tallystack/tallyauth/internal/auth/cache"
	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/identity"
	"github.com/tallystack/tallyauth/internal/auth/service"
	"github.com/tallystack/tallyauth/internal/auth/store"
	"github.com/tallystack/tallyauth/internal/auth/store/drivers/sqlite"
	"github.com/tallystack/tallyauth/pkg/cryptox"
	"github.com/tallystack/tallyauth/pkg/idx"
	"github.com/tallystack/tallyauth/pkg/jwtx"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "tallyauth-http-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

type testEnv struct {
	router *Router
	store  store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signer, err := jwtx.NewEphemeralSigner()
	require.NoError(t, err)

	verifier := identity.NewLocalVerifier(st)
	activity := &service.ActivityService{Store: st, Logger: logger}
	guard := &service.LockoutGuard{Store: st}
	totp := &service.TOTPService{Store: st, Activity: activity, Issuer: "tallyauth-test"}
	sessions := &service.SessionManager{
		Remote:   service.StoreProfileSource{Profiles: st.Profiles()},
		Cache:    cache.New(filepath.Join(t.TempDir(), "profile.json")),
		Activity: activity,
		Logger:   logger,
	}

	r := NewRouter(signer, "tallyauth-test", "test", time.Hour, st, logger)
	r.LoginService = &service.LoginService{
		Store:     st,
		Verifier:  verifier,
		Notifier:  verifier,
		Guard:     guard,
		TOTP:      totp,
		Sessions:  sessions,
		Activity:  activity,
		Bootstrap: service.DefaultBootstrapAdmin(),
	}
	r.UserService = &service.UserService{
		Store:    st,
		Verifier: verifier,
		Guard:    guard,
		Sessions: sessions,
		Activity: activity,
	}
	r.TOTPService = totp
	r.ActivityService = activity
	r.Sessions = sessions
	r.ApplyRoutes()

	return &testEnv{router: r, store: st}
}

func (e *testEnv) seedUser(t *testing.T, username, password string, role domain.Role) domain.Profile {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	p := domain.Profile{
		ID:        idx.New().String(),
		Username:  username,
		Email:     username + "@example.com",
		FullName:  username,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.store.Profiles().CreateProfile(ctx, p))

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, e.store.Credentials().CreateCredential(ctx, p.ID, hash))
	return p
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func (e *testEnv) login(t *testing.T, identifier, password string) (string, map[string]any) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token, body
}

func TestLoginIssuesSessionToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "correct horse battery", domain.RoleUser)

	token, body := env.login(t, "alice", "correct horse battery")
	require.Equal(t, "Bearer", body["token_type"])

	profile, ok := body["profile"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "alice", profile["username"])

	w := env.do(t, http.MethodGet, "/v1/auth/session", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	session := decodeBody(t, w)
	require.Equal(t, string(domain.PhaseReconciled), session["phase"])
	sp := session["profile"].(map[string]any)
	require.Equal(t, "alice", sp["username"])
}

func TestLoginRejectionsAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "correct horse battery", domain.RoleUser)

	wrong := env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"identifier": "alice", "password": "wrong",
	}, "")
	unknown := env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"identifier": "mallory", "password": "wrong",
	}, "")

	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, http.StatusUnauthorized, unknown.Code)

	wrongBody := decodeBody(t, wrong)
	unknownBody := decodeBody(t, unknown)
	require.Equal(t, "invalid_credentials", wrongBody["error"])
	require.Equal(t, wrongBody["error"], unknownBody["error"])
	require.Equal(t, wrongBody["error_description"], unknownBody["error_description"])
}

func TestLoginValidatesInput(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"identifier": "alice"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_request", decodeBody(t, w)["error"])
}

func TestLoginTwoFactorChallengeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedUser(t, "alice", "correct horse battery", domain.RoleUser)

	ctx := context.Background()
	require.NoError(t, env.store.Profiles().SetTwoFactorSecret(ctx, p.ID, "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"))
	require.NoError(t, env.store.Profiles().EnableTwoFactor(ctx, p.ID))

	w := env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"identifier": "alice", "password": "correct horse battery",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "two_factor_required", body["error"])
	require.Equal(t, true, body["two_factor_required"])

	w = env.do(t, http.MethodPost, "/v1/auth/2fa/verify", map[string]string{"code": "000000"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "invalid_two_factor_code", decodeBody(t, w)["error"])
}

func TestSessionRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/auth/session", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/v1/auth/session", nil, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "correct horse battery", domain.RoleUser)

	token, _ := env.login(t, "alice", "correct horse battery")

	w := env.do(t, http.MethodPost, "/v1/auth/logout", nil, token)
	require.Equal(t, http.StatusNoContent, w.Code)

	// Token still verifies, but there is no session state behind it anymore.
	w = env.do(t, http.MethodGet, "/v1/auth/session", nil, token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserManagementEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "admin password 1", domain.RoleAdmin)
	token, _ := env.login(t, "admin", "admin password 1")

	w := env.do(t, http.MethodPost, "/v1/users", map[string]any{
		"username":  "bob",
		"email":     "bob@example.com",
		"full_name": "Bob",
		"password":  "a strong password",
		"role":      "user",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody(t, w)
	bobID, _ := created["id"].(string)
	require.NotEmpty(t, bobID)

	w = env.do(t, http.MethodGet, "/v1/users", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	listBody := decodeBody(t, w)
	users, ok := listBody["users"].([]any)
	require.True(t, ok)
	require.Len(t, users, 2)

	w = env.do(t, http.MethodPatch, "/v1/users/"+bobID, map[string]any{
		"full_name": "Robert",
	}, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/users/"+bobID, nil, token)
	require.Equal(t, http.StatusNoContent, w.Code)

	p, err := env.store.Profiles().GetProfileByID(context.Background(), bobID)
	require.NoError(t, err)
	require.False(t, p.Active)
}

func TestCreateUserConflictAndValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "admin password 1", domain.RoleAdmin)
	env.seedUser(t, "bob", "another password 1", domain.RoleUser)
	token, _ := env.login(t, "admin", "admin password 1")

	w := env.do(t, http.MethodPost, "/v1/users", map[string]any{
		"username": "bob",
		"email":    "bob2@example.com",
		"password": "a strong password",
	}, token)
	require.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/v1/users", map[string]any{
		"username": "carol",
		"email":    "carol@example.com",
		"password": "short",
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivityEndpointScoping(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "admin password 1", domain.RoleAdmin)
	alice := env.seedUser(t, "alice", "correct horse battery", domain.RoleUser)

	userToken, _ := env.login(t, "alice", "correct horse battery")

	// Regular users only see their own entries regardless of filters.
	w := env.do(t, http.MethodGet, "/v1/activity?account_id="+alice.ID, nil, userToken)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, entries)
	for _, raw := range entries {
		e := raw.(map[string]any)
		require.Equal(t, alice.ID, e["account_id"])
	}

	w = env.do(t, http.MethodDelete, "/v1/activity?before="+time.Now().UTC().Format(time.RFC3339), nil, userToken)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/livez", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/readyz", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}
