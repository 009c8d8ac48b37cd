package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/cache"
	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/identity"
	"github.com/tallystack/tallyauth/internal/auth/store"
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// DefaultReconcileTimeout bounds how long Bootstrap waits for the source of
// truth before keeping the cached state.
const DefaultReconcileTimeout = 15 * time.Second

// ProfileSource is the source of truth the session reconciles against.
// found=false means the account verifiably does not exist (or is inactive),
// which is distinct from an error reaching the source at all.
type ProfileSource interface {
	FetchProfile(ctx context.Context, accountID string) (p domain.Profile, found bool, err error)
}

// SessionManager owns the in-memory AuthState. It is the single writer;
// everything else observes via Snapshot. Bootstrap publishes the cached
// profile immediately and reconciles against the source of truth in the
// background, bounded by a watchdog: a slow or dead backend degrades the
// session to "cached, flagged" instead of blocking it.
type SessionManager struct {
	Remote   ProfileSource
	Cache    *cache.ProfileCache
	Activity *ActivityService
	Logger   *slog.Logger

	ReconcileTimeout time.Duration
	Now              func() time.Time

	mu    sync.Mutex
	state domain.AuthState
}

// sessionDegradedMessage is the non-fatal error surfaced when reconciliation
// could not reach the source of truth and the cached profile was kept.
const sessionDegradedMessage = "using cached profile data"

func (m *SessionManager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *SessionManager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *SessionManager) reconcileTimeout() time.Duration {
	if m.ReconcileTimeout > 0 {
		return m.ReconcileTimeout
	}
	return DefaultReconcileTimeout
}

// Snapshot returns a copy of the current auth state.
func (m *SessionManager) Snapshot() domain.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Bootstrap establishes the initial session state. The cached profile, when
// present, is published before the source of truth is consulted; the
// reconcile step then confirms, replaces, or revokes it. Remote absence
// always wins over the cache.
func (m *SessionManager) Bootstrap(ctx context.Context) domain.AuthState {
	log := m.logger()

	cached, hasCached, err := m.loadCache()
	if err != nil {
		log.Warn("profile cache unreadable, starting cold", "err", err)
	}

	m.mu.Lock()
	if hasCached {
		m.state = domain.AuthState{
			Phase:           domain.PhaseHydrated,
			CurrentAccount:  &cached,
			IsAuthenticated: true,
			IsLoading:       true,
		}
	} else {
		m.state = domain.AuthState{Phase: domain.PhaseStarting, IsLoading: true}
	}
	m.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, m.reconcileTimeout())
	defer cancel()

	var (
		remote domain.Profile
		found  bool
	)
	if hasCached {
		remote, found, err = m.Remote.FetchProfile(rctx, cached.ID)
	} else {
		// Nothing to reconcile against; an empty cache means signed out.
		found, err = false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case err != nil && hasCached:
		// Source of truth unreachable. Keep the cached session but flag it
		// so callers can show degraded-mode state.
		log.Warn("reconcile failed, keeping cached profile", "account_id", cached.ID, "err", err)
		m.state.Error = sessionDegradedMessage

	case err != nil:
		m.state = domain.Anonymous()
		m.state.Error = "unable to reach authentication backend"

	case found:
		m.state.CurrentAccount = &remote
		m.state.IsAuthenticated = true
		m.state.Error = ""
		if err := m.Cache.Store(remote); err != nil {
			log.Warn("failed to refresh profile cache", "err", err)
		}

	default:
		// The source of truth says this account no longer exists (or was
		// deactivated). Remote absence wins; drop the cached session.
		if hasCached {
			log.Info("cached account no longer valid, signing out", "account_id", cached.ID)
			if err := m.Cache.Clear(); err != nil {
				log.Warn("failed to clear profile cache", "err", err)
			}
			if m.Activity != nil {
				m.Activity.Record(ctx, domain.ActivityLogEntry{
					AccountID:   cached.ID,
					Username:    cached.Username,
					Type:        domain.ActivityLogout,
					Description: "cached session revoked, account no longer valid",
				})
			}
		}
		m.state = domain.Anonymous()
	}

	m.state.Phase = domain.PhaseReconciled
	m.state.IsLoading = false
	return m.state
}

func (m *SessionManager) loadCache() (domain.Profile, bool, error) {
	if m.Cache == nil {
		return domain.Profile{}, false, nil
	}
	return m.Cache.Load()
}

// Run consumes identity events until ctx is cancelled. A signed-in event for
// an account we did not establish locally re-resolves the profile; a
// signed-out event tears the session down. This keeps concurrent consumers
// of the same identity store converging on one view.
func (m *SessionManager) Run(ctx context.Context, events <-chan identity.Event) {
	log := m.logger()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case identity.EventSignedIn:
				m.absorbSignIn(ctx, ev, log)
			case identity.EventSignedOut:
				m.Teardown()
			case identity.EventCredentialChanged:
				log.Info("credential changed", "account_id", ev.AccountID)
			}
		}
	}
}

// absorbSignIn adopts a sign-in that happened elsewhere. No activity entry
// is written here; the originating flow already logged it once.
func (m *SessionManager) absorbSignIn(ctx context.Context, ev identity.Event, log *slog.Logger) {
	m.mu.Lock()
	cur := m.state.CurrentAccount
	m.mu.Unlock()
	if cur != nil && cur.ID == ev.AccountID {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, m.reconcileTimeout())
	defer cancel()

	p, found, err := m.Remote.FetchProfile(rctx, ev.AccountID)
	if err != nil || !found {
		if err != nil {
			log.Warn("failed to resolve signed-in account", "account_id", ev.AccountID, "err", err)
		}
		// Synthesize a minimal profile rather than dropping the event; the
		// next reconcile fills in the rest.
		p = domain.Profile{ID: ev.AccountID, Role: domain.RoleUser, Active: true}
	}

	m.mu.Lock()
	m.state.CurrentAccount = &p
	m.state.IsAuthenticated = true
	m.state.IsLoading = false
	m.state.Verifying2FA = false
	m.state.PendingAccount = nil
	m.state.Error = ""
	m.mu.Unlock()
}

// BeginAttempt marks a login attempt in flight.
func (m *SessionManager) BeginAttempt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.IsLoading = true
	m.state.Error = ""
}

// BeginTwoFactor parks the resolved profile behind a 2FA challenge. The
// session stays unauthenticated until the code verifies.
func (m *SessionManager) BeginTwoFactor(p domain.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Verifying2FA = true
	m.state.PendingAccount = &p
	m.state.IsLoading = false
	m.state.Error = ""
}

// PendingAccount returns the profile awaiting 2FA verification, if any.
func (m *SessionManager) PendingAccount() (domain.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Verifying2FA || m.state.PendingAccount == nil {
		return domain.Profile{}, false
	}
	return *m.state.PendingAccount, true
}

// CompleteLogin publishes the authenticated state and persists the profile
// as the new last-known-good cache entry.
func (m *SessionManager) CompleteLogin(p domain.Profile, passwordChangeRequired bool) {
	m.mu.Lock()
	m.state = domain.AuthState{
		Phase:                  domain.PhaseReconciled,
		CurrentAccount:         &p,
		IsAuthenticated:        true,
		PasswordChangeRequired: passwordChangeRequired,
	}
	m.mu.Unlock()

	if m.Cache != nil {
		if err := m.Cache.Store(p); err != nil {
			m.logger().Warn("failed to persist profile cache", "err", err)
		}
	}
}

// FailLogin records a failed attempt's user-facing message and clears any
// outstanding 2FA challenge.
func (m *SessionManager) FailLogin(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.IsLoading = false
	m.state.Verifying2FA = false
	m.state.PendingAccount = nil
	m.state.Error = message
}

// ClearPasswordChangeRequired drops the forced-change flag after a
// successful password change.
func (m *SessionManager) ClearPasswordChangeRequired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PasswordChangeRequired = false
}

// Teardown signs the session out and removes the cached profile.
func (m *SessionManager) Teardown() {
	m.mu.Lock()
	m.state = domain.Anonymous()
	m.mu.Unlock()

	if m.Cache != nil {
		if err := m.Cache.Clear(); err != nil {
			m.logger().Warn("failed to clear profile cache", "err", err)
		}
	}
}

// StoreProfileSource adapts a profile store lookup into a ProfileSource.
type StoreProfileSource struct {
	Profiles interface {
		GetProfileByID(ctx context.Context, id string) (domain.Profile, error)
	}
}

func (s StoreProfileSource) FetchProfile(ctx context.Context, accountID string) (domain.Profile, bool, error) {
	p, err := s.Profiles.GetProfileByID(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return domain.Profile{}, false, nil
		}
		return domain.Profile{}, false, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if !p.Active {
		// Deactivated accounts reconcile as absent.
		return domain.Profile{}, false, nil
	}
	return p, true, nil
}
