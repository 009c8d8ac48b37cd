package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/identity"
	"github.com/tallystack/tallyauth/internal/auth/store"
)

type loginEnv struct {
	store    store.Store
	clock    *fakeClock
	guard    *LockoutGuard
	totp     *TOTPService
	sessions *SessionManager
	login    *LoginService
}

func newLoginEnv(t *testing.T) *loginEnv {
	t.Helper()

	st := newTestStore(t)
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	verifier := identity.NewLocalVerifier(st)
	activity := newActivityService(st)
	guard := &LockoutGuard{Store: st, Now: clk.Now}
	totp := &TOTPService{Store: st, Activity: activity, Issuer: "tallyauth", Now: clk.Now}
	sessions := newSessionManager(t, st)

	login := &LoginService{
		Store:     st,
		Verifier:  verifier,
		Notifier:  verifier,
		Guard:     guard,
		TOTP:      totp,
		Sessions:  sessions,
		Activity:  activity,
		Bootstrap: DefaultBootstrapAdmin(),
		Now:       clk.Now,
	}

	return &loginEnv{
		store:    st,
		clock:    clk,
		guard:    guard,
		totp:     totp,
		sessions: sessions,
		login:    login,
	}
}

func TestLoginBootstrapCreatesRoot(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)

	p, err := env.login.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	require.Equal(t, domain.RoleRoot, p.Role)
	require.Equal(t, "admin", p.Username)

	state := env.sessions.Snapshot()
	require.True(t, state.IsAuthenticated)
	require.True(t, state.PasswordChangeRequired)

	hasRoot, err := env.store.Profiles().HasRoot(ctx)
	require.NoError(t, err)
	require.True(t, hasRoot)

	// The bootstrap credential is now a regular stored credential.
	p2, err := env.login.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	require.Equal(t, p.ID, p2.ID)
}

func TestLoginBootstrapRequiresExactCredential(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)

	_, err := env.login.Login(ctx, "admin", "wrong-password")
	require.Equal(t, domain.KindUnknownAccount, domain.KindOf(err))

	hasRoot, herr := env.store.Profiles().HasRoot(ctx)
	require.NoError(t, herr)
	require.False(t, hasRoot)
}

func TestLoginBootstrapOnlyWhileNoRoot(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)

	_, err := env.login.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	// Once a root exists the bootstrap path is closed: the admin login now
	// resolves through the regular credential flow, and a second root can
	// never be minted.
	_, err = env.login.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	profiles, err := env.store.Profiles().ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
}

func TestLoginUnknownAccountIndistinguishableFromBadPassword(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)
	seedUser(t, env.store, "alice", "correct-horse-battery", domain.RoleUser)

	_, errUnknown := env.login.Login(ctx, "nobody", "whatever")
	require.Equal(t, domain.KindUnknownAccount, domain.KindOf(errUnknown))

	_, errBadPw := env.login.Login(ctx, "alice", "wrong-password")
	require.Equal(t, domain.KindInvalidCredentials, domain.KindOf(errBadPw))

	var ae1, ae2 *domain.AuthError
	require.ErrorAs(t, errUnknown, &ae1)
	require.ErrorAs(t, errBadPw, &ae2)
	require.Equal(t, ae1.Message, ae2.Message)
}

func TestLoginDeactivatedAccountLooksUnknown(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)
	p := seedUser(t, env.store, "alice", "correct-horse-battery", domain.RoleUser)
	require.NoError(t, env.store.Profiles().SetActive(ctx, p.ID, false))

	_, err := env.login.Login(ctx, "alice", "correct-horse-battery")
	require.Equal(t, domain.KindUnknownAccount, domain.KindOf(err))
}

func TestLoginResolvesByEmail(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)
	p := seedUser(t, env.store, "alice", "correct-horse-battery", domain.RoleUser)

	got, err := env.login.Login(ctx, "alice@example.com", "correct-horse-battery")
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
}

func TestLoginLockoutFlow(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)
	p := seedUser(t, env.store, "alice", "correct-horse-battery", domain.RoleUser)

	// Four bad passwords count down the remaining attempts.
	for i := 1; i < DefaultMaxAttempts; i++ {
		_, err := env.login.Login(ctx, "alice", "wrong-password")
		require.Equal(t, domain.KindInvalidCredentials, domain.KindOf(err))

		var ae *domain.AuthError
		require.ErrorAs(t, err, &ae)
		require.Equal(t, DefaultMaxAttempts-i, ae.AttemptsRemaining)
	}

	// The fifth trips the lock.
	_, err := env.login.Login(ctx, "alice", "wrong-password")
	require.Equal(t, domain.KindAccountLocked, domain.KindOf(err))

	entries := queryActivity(t, env.store, domain.ActivityFilter{AccountID: p.ID, Type: domain.ActivityAccountLocked})
	require.Len(t, entries, 1)
	require.Equal(t, domain.SeverityCritical, entries[0].Severity)

	// Even the correct password is refused while locked, and the refusal
	// discloses the lock rather than pretending the password was wrong.
	_, err = env.login.Login(ctx, "alice", "correct-horse-battery")
	require.Equal(t, domain.KindAccountLocked, domain.KindOf(err))

	var ae *domain.AuthError
	require.ErrorAs(t, err, &ae)
	require.Greater(t, ae.RetryAfter, time.Duration(0))

	// After the window passes the correct password works again.
	env.clock.Advance(DefaultLockDuration + time.Second)

	got, err := env.login.Login(ctx, "alice", "correct-horse-battery")
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	fresh, err := env.store.Profiles().GetProfileByID(ctx, p.ID)
	require.NoError(t, err)
	require.Zero(t, fresh.FailedAttempts)
	require.Nil(t, fresh.LockedUntil)
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)
	p := seedUser(t, env.store, "alice", "correct-horse-battery", domain.RoleUser)

	_, err := env.login.Login(ctx, "alice", "wrong-password")
	require.Error(t, err)
	_, err = env.login.Login(ctx, "alice", "wrong-password")
	require.Error(t, err)

	_, err = env.login.Login(ctx, "alice", "correct-horse-battery")
	require.NoError(t, err)

	fresh, err := env.store.Profiles().GetProfileByID(ctx, p.ID)
	require.NoError(t, err)
	require.Zero(t, fresh.FailedAttempts)
	require.NotNil(t, fresh.LastLogin)
}

func TestLoginTwoFactorFlow(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)
	p := seedUser(t, env.store, "alice", "correct-horse-battery", domain.RoleUser)

	enrollment, err := env.totp.GenerateSecret(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, env.totp.Enable(ctx, p.ID, codeAt(t, enrollment.Secret, env.clock.Now())))

	// The password alone does not authenticate.
	_, err = env.login.Login(ctx, "alice", "correct-horse-battery")
	require.Equal(t, domain.KindTwoFactorRequired, domain.KindOf(err))

	state := env.sessions.Snapshot()
	require.False(t, state.IsAuthenticated)
	require.True(t, state.Verifying2FA)

	t.Run("wrong code rejected without touching the guard", func(t *testing.T) {
		_, err := env.login.VerifyTwoFactor(ctx, "000000")
		require.Equal(t, domain.KindInvalidTwoFactorCode, domain.KindOf(err))

		fresh, ferr := env.store.Profiles().GetProfileByID(ctx, p.ID)
		require.NoError(t, ferr)
		require.Zero(t, fresh.FailedAttempts)
	})

	// Challenge the login again and finish it with a valid code.
	_, err = env.login.Login(ctx, "alice", "correct-horse-battery")
	require.Equal(t, domain.KindTwoFactorRequired, domain.KindOf(err))

	got, err := env.login.VerifyTwoFactor(ctx, codeAt(t, enrollment.Secret, env.clock.Now()))
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	state = env.sessions.Snapshot()
	require.True(t, state.IsAuthenticated)
	require.False(t, state.Verifying2FA)
}

func TestVerifyTwoFactorWithoutChallenge(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)

	_, err := env.login.VerifyTwoFactor(ctx, "123456")
	require.Equal(t, domain.KindPermissionDenied, domain.KindOf(err))
}

func TestLogoutRecordsBeforeTeardown(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)
	p := seedUser(t, env.store, "alice", "correct-horse-battery", domain.RoleUser)

	_, err := env.login.Login(ctx, "alice", "correct-horse-battery")
	require.NoError(t, err)

	env.login.Logout(ctx)

	state := env.sessions.Snapshot()
	require.False(t, state.IsAuthenticated)
	require.Nil(t, state.CurrentAccount)

	// The entry carries the account identity captured before teardown.
	entries := queryActivity(t, env.store, domain.ActivityFilter{AccountID: p.ID, Type: domain.ActivityLogout})
	require.Len(t, entries, 1)
	require.Equal(t, "alice", entries[0].Username)
}

func TestLogoutWithoutSessionIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newLoginEnv(t)

	env.login.Logout(ctx)

	entries := queryActivity(t, env.store, domain.ActivityFilter{Type: domain.ActivityLogout})
	require.Empty(t, entries)
}
