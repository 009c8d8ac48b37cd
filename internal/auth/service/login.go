package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/identity"
	"github.com/tallystack/tallyauth/internal/auth/store"
	"github.com/tallystack/tallyauth/pkg/cryptox"
	"github.com/tallystack/tallyauth/pkg/idx"
)

// BootstrapAdmin is the break-glass credential that creates the root profile
// on first use. It only works while no root profile exists; the created
// account is forced into a password change.
type BootstrapAdmin struct {
	Username string
	Password string
	Email    string
	FullName string
}

// DefaultBootstrapAdmin matches the documented first-run credential.
func DefaultBootstrapAdmin() BootstrapAdmin {
	return BootstrapAdmin{
		Username: "admin",
		Password: "admin123",
		Email:    "admin@localhost",
		FullName: "Administrator",
	}
}

// LoginService drives the credential login state machine: resolve account,
// consult the lockout guard, verify the credential, then either complete the
// session or park it behind a 2FA challenge.
type LoginService struct {
	Store    store.Store
	Verifier identity.Verifier
	Notifier identity.Notifier
	Guard    *LockoutGuard
	TOTP     *TOTPService
	Sessions *SessionManager
	Activity *ActivityService

	Bootstrap BootstrapAdmin

	Now func() time.Time
}

func (s *LoginService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Login authenticates identifier+password. On success the session is
// established and the profile returned. When 2FA is enabled the session is
// left pending and the error is KindTwoFactorRequired; VerifyTwoFactor
// finishes the flow.
func (s *LoginService) Login(ctx context.Context, identifier, password string) (domain.Profile, error) {
	identifier = strings.TrimSpace(identifier)
	s.Sessions.BeginAttempt()

	p, err := s.resolveAccount(ctx, identifier)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Profile{}, s.fail(domain.ErrUpstreamUnavailable(err))
		}

		// First-run exception: the documented bootstrap credential creates
		// the root profile while none exists.
		if s.isBootstrapAttempt(ctx, identifier, password) {
			return s.bootstrapRoot(ctx)
		}

		s.Activity.Record(ctx, domain.ActivityLogEntry{
			Username:    identifier,
			Type:        domain.ActivityFailedLogin,
			Description: "login attempt for unknown account",
		})
		return domain.Profile{}, s.fail(domain.ErrUnknownAccount())
	}

	// Deactivated accounts are indistinguishable from unknown ones.
	if !p.Active {
		s.Activity.Record(ctx, domain.ActivityLogEntry{
			AccountID:   p.ID,
			Username:    p.Username,
			Type:        domain.ActivityFailedLogin,
			Description: "login attempt for deactivated account",
		})
		return domain.Profile{}, s.fail(domain.ErrUnknownAccount())
	}

	// Lockout check happens before the credential is even looked at, so a
	// locked account leaks nothing about credential validity.
	status, err := s.Guard.IsLocked(ctx, p.ID)
	if err != nil {
		return domain.Profile{}, s.fail(err)
	}
	if status.Locked {
		s.Activity.Record(ctx, domain.ActivityLogEntry{
			AccountID:   p.ID,
			Username:    p.Username,
			Type:        domain.ActivityFailedLogin,
			Description: "login attempt while account locked",
		})
		return domain.Profile{}, s.fail(domain.ErrAccountLocked(status.Remaining))
	}

	if err := s.Verifier.Verify(ctx, p.ID, password); err != nil {
		if errors.Is(err, identity.ErrBadCredential) {
			return domain.Profile{}, s.handleBadCredential(ctx, p)
		}
		return domain.Profile{}, s.fail(domain.ErrUpstreamUnavailable(err))
	}

	if p.TwoFactorEnabled {
		s.Sessions.BeginTwoFactor(p)
		return p, domain.ErrTwoFactorRequired()
	}

	return s.establishSession(ctx, p, false)
}

// handleBadCredential records the failure with the guard and translates the
// outcome into the user-facing error.
func (s *LoginService) handleBadCredential(ctx context.Context, p domain.Profile) error {
	res, err := s.Guard.RecordFailure(ctx, p.ID)
	if err != nil {
		return s.fail(err)
	}

	switch {
	case res.Locked:
		s.Activity.Record(ctx, domain.ActivityLogEntry{
			AccountID:   p.ID,
			Username:    p.Username,
			Type:        domain.ActivityAccountLocked,
			Description: "account locked after repeated failed logins",
			Details:     map[string]any{"lock_minutes": int(res.Remaining.Minutes())},
		})
		return s.fail(domain.ErrAccountLocked(res.Remaining))

	case res.Blocked:
		return s.fail(domain.ErrAccountLocked(res.Remaining))

	default:
		s.Activity.Record(ctx, domain.ActivityLogEntry{
			AccountID:   p.ID,
			Username:    p.Username,
			Type:        domain.ActivityFailedLogin,
			Description: "invalid password",
			Details:     map[string]any{"attempts_remaining": res.AttemptsRemaining},
		})
		return s.fail(domain.ErrInvalidCredentials(res.AttemptsRemaining))
	}
}

// VerifyTwoFactor completes a login parked behind a 2FA challenge. Code
// failures do not advance the lockout counter; the password was already
// proven and a lock here would let a code-guessing attacker deny service.
func (s *LoginService) VerifyTwoFactor(ctx context.Context, code string) (domain.Profile, error) {
	p, ok := s.Sessions.PendingAccount()
	if !ok {
		return domain.Profile{}, domain.ErrPermissionDenied("no two-factor challenge in progress")
	}

	secret := p.TwoFactorSecret
	if secret == nil || *secret == "" {
		// The pending snapshot may predate enrollment; reload.
		fresh, err := s.Store.Profiles().GetProfileByID(ctx, p.ID)
		if err != nil {
			return domain.Profile{}, s.fail(domain.ErrUpstreamUnavailable(err))
		}
		p = fresh
		secret = p.TwoFactorSecret
	}

	if secret == nil || !s.TOTP.VerifyCode(*secret, code) {
		s.Activity.Record(ctx, domain.ActivityLogEntry{
			AccountID:   p.ID,
			Username:    p.Username,
			Type:        domain.ActivityFailedLogin,
			Description: "invalid two-factor code",
		})
		e := domain.ErrInvalidTwoFactorCode()
		s.Sessions.FailLogin(e.Message)
		return domain.Profile{}, e
	}

	return s.establishSession(ctx, p, false)
}

// Logout tears the session down. The audit entry is written first, while
// the account identity is still attached to the session.
func (s *LoginService) Logout(ctx context.Context) {
	state := s.Sessions.Snapshot()
	if state.CurrentAccount != nil {
		s.Activity.Record(ctx, domain.ActivityLogEntry{
			AccountID:   state.CurrentAccount.ID,
			Username:    state.CurrentAccount.Username,
			Type:        domain.ActivityLogout,
			Description: "signed out",
		})
	}

	s.Sessions.Teardown()

	if state.CurrentAccount != nil && s.Notifier != nil {
		s.Notifier.Broadcast(identity.Event{
			Type:      identity.EventSignedOut,
			AccountID: state.CurrentAccount.ID,
			At:        s.now(),
		})
	}
}

// resolveAccount maps a login identifier to a profile. Identifiers with an
// "@" resolve as email, everything else as username.
func (s *LoginService) resolveAccount(ctx context.Context, identifier string) (domain.Profile, error) {
	if strings.Contains(identifier, "@") {
		return s.Store.Profiles().GetProfileByEmail(ctx, identifier)
	}
	return s.Store.Profiles().GetProfileByUsername(ctx, identifier)
}

func (s *LoginService) isBootstrapAttempt(ctx context.Context, identifier, password string) bool {
	if s.Bootstrap.Username == "" || identifier != s.Bootstrap.Username || password != s.Bootstrap.Password {
		return false
	}
	hasRoot, err := s.Store.Profiles().HasRoot(ctx)
	if err != nil {
		return false
	}
	return !hasRoot
}

// bootstrapRoot creates the root profile and its credential atomically, then
// signs it in with a forced password change.
func (s *LoginService) bootstrapRoot(ctx context.Context) (domain.Profile, error) {
	now := s.now()
	p := domain.Profile{
		ID:        idx.New().String(),
		Username:  s.Bootstrap.Username,
		Email:     s.Bootstrap.Email,
		FullName:  s.Bootstrap.FullName,
		Role:      domain.RoleRoot,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	hash, err := cryptox.HashPassword(s.Bootstrap.Password)
	if err != nil {
		return domain.Profile{}, s.fail(domain.ErrUpstreamUnavailable(err))
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Profiles().CreateProfile(ctx, p); err != nil {
			return fmt.Errorf("failed to create root profile: %w", err)
		}
		if err := tx.Credentials().CreateCredential(ctx, p.ID, hash); err != nil {
			return fmt.Errorf("failed to create root credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Profile{}, s.fail(domain.ErrUpstreamUnavailable(err))
	}

	s.Activity.Record(ctx, domain.ActivityLogEntry{
		AccountID:   p.ID,
		Username:    p.Username,
		Type:        domain.ActivityUserCreated,
		Severity:    domain.SeverityWarning,
		Description: "root account created via bootstrap credential",
	})

	return s.establishSession(ctx, p, true)
}

// establishSession finalizes a successful authentication: reset the guard,
// stamp last login, publish the session, audit, and broadcast.
func (s *LoginService) establishSession(ctx context.Context, p domain.Profile, passwordChangeRequired bool) (domain.Profile, error) {
	now := s.now()

	if err := s.Guard.Reset(ctx, p.ID); err != nil {
		return domain.Profile{}, s.fail(err)
	}
	p.FailedAttempts = 0
	p.LockedUntil = nil

	if err := s.Store.Profiles().UpdateLastLogin(ctx, p.ID, now); err != nil {
		return domain.Profile{}, s.fail(domain.ErrUpstreamUnavailable(err))
	}
	p.LastLogin = &now

	s.Sessions.CompleteLogin(p, passwordChangeRequired)

	s.Activity.Record(ctx, domain.ActivityLogEntry{
		AccountID:   p.ID,
		Username:    p.Username,
		Type:        domain.ActivityLogin,
		Description: "signed in",
	})

	if s.Notifier != nil {
		s.Notifier.Broadcast(identity.Event{
			Type:      identity.EventSignedIn,
			AccountID: p.ID,
			At:        now,
		})
	}
	return p, nil
}

// fail records the user-facing message on the session and passes the error
// through.
func (s *LoginService) fail(err error) error {
	var ae *domain.AuthError
	if errors.As(err, &ae) {
		s.Sessions.FailLogin(ae.Message)
	} else {
		s.Sessions.FailLogin("login failed")
	}
	return err
}
