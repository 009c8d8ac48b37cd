package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/store"
)

const (
	// DefaultMaxAttempts is how many consecutive failures trip a lock.
	DefaultMaxAttempts = 5
	// DefaultLockDuration is how long a tripped lock holds.
	DefaultLockDuration = 15 * time.Minute
)

// LockStatus is the guard's answer to "may this account attempt a login".
type LockStatus struct {
	Locked    bool
	Remaining time.Duration
}

// FailureResult describes what recording one failed attempt did.
type FailureResult struct {
	// Blocked means the attempt landed inside an active lock window. The
	// counter was not advanced; a locked account cannot lock itself harder.
	Blocked bool

	// AttemptsRemaining before the next failure trips a lock. Zero when
	// Blocked or Locked.
	AttemptsRemaining int

	// Locked means this failure tripped a fresh lock.
	Locked    bool
	Remaining time.Duration
}

// LockoutGuard enforces the brute-force lockout policy over the profile
// store. Lock expiry is lazy: nothing unlocks in the background, the next
// check observes the expired window and clears it.
type LockoutGuard struct {
	Store        store.Store
	MaxAttempts  int
	LockDuration time.Duration

	// Now is swappable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (g *LockoutGuard) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *LockoutGuard) maxAttempts() int {
	if g.MaxAttempts > 0 {
		return g.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (g *LockoutGuard) lockDuration() time.Duration {
	if g.LockDuration > 0 {
		return g.LockDuration
	}
	return DefaultLockDuration
}

// IsLocked checks the account's lock window, lazily clearing it if it has
// expired. Storage faults surface as KindGuardUnavailable so the login flow
// fails closed instead of skipping the check.
func (g *LockoutGuard) IsLocked(ctx context.Context, accountID string) (LockStatus, error) {
	now := g.now()

	p, err := g.Store.Profiles().GetProfileByID(ctx, accountID)
	if err != nil {
		return LockStatus{}, domain.ErrGuardUnavailable(fmt.Errorf("failed to load lockout record: %w", err))
	}

	if p.LockedUntil == nil {
		return LockStatus{}, nil
	}

	if now.Before(*p.LockedUntil) {
		return LockStatus{Locked: true, Remaining: p.LockedUntil.Sub(now)}, nil
	}

	// Window expired. Clear it now so the failure counter restarts from a
	// clean record.
	if err := g.Store.Profiles().ClearLock(ctx, accountID); err != nil {
		return LockStatus{}, domain.ErrGuardUnavailable(fmt.Errorf("failed to clear expired lock: %w", err))
	}
	return LockStatus{}, nil
}

// RecordFailure counts one failed credential attempt. The check-expire-
// increment sequence runs in a single transaction so concurrent failures
// cannot lose counter updates or double-trip the lock.
func (g *LockoutGuard) RecordFailure(ctx context.Context, accountID string) (FailureResult, error) {
	now := g.now()
	max := g.maxAttempts()

	var res FailureResult
	err := g.Store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.Profiles().GetProfileByID(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to load lockout record: %w", err)
		}

		if p.Locked(now) {
			res = FailureResult{Blocked: true, Remaining: p.LockedUntil.Sub(now)}
			return nil
		}

		if p.LockedUntil != nil {
			// Expired window; start a fresh counting window first.
			if err := tx.Profiles().ClearLock(ctx, accountID); err != nil {
				return fmt.Errorf("failed to clear expired lock: %w", err)
			}
		}

		attempts, err := tx.Profiles().IncrementFailedAttempts(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to increment attempt counter: %w", err)
		}

		if attempts >= max {
			until := now.Add(g.lockDuration())
			if err := tx.Profiles().SetLock(ctx, accountID, until); err != nil {
				return fmt.Errorf("failed to set lock: %w", err)
			}
			res = FailureResult{Locked: true, Remaining: g.lockDuration()}
			return nil
		}

		res = FailureResult{AttemptsRemaining: max - attempts}
		return nil
	})
	if err != nil {
		return FailureResult{}, domain.ErrGuardUnavailable(err)
	}
	return res, nil
}

// Reset clears the lock and failure counter after a successful login or an
// administrative unlock. Resetting a clean record is a no-op.
func (g *LockoutGuard) Reset(ctx context.Context, accountID string) error {
	if err := g.Store.Profiles().ClearLock(ctx, accountID); err != nil {
		return domain.ErrGuardUnavailable(fmt.Errorf("failed to reset lockout record: %w", err))
	}
	return nil
}
