package store

import (
	"context"
	"errors"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Sub-repositories keep concerns tidy and make it obvious
// when someone is about to open a transaction inside a transaction.
type Store interface {
	Profiles() Profiles
	Credentials() Credentials
	Activity() Activity

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and rolling
	// back on error. Prefer this over Tx for multi-step operations that must
	// be atomic (lockout counter updates, profile+credential creation).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Profiles interface {
	GetProfileByID(ctx context.Context, id string) (domain.Profile, error)

	// GetProfileByUsername resolves a login identifier that is not an email.
	GetProfileByUsername(ctx context.Context, username string) (domain.Profile, error)

	GetProfileByEmail(ctx context.Context, email string) (domain.Profile, error)

	// CreateProfile inserts a new profile (id is provided by app via ULID).
	CreateProfile(ctx context.Context, p domain.Profile) error

	// UpdateContact mutates email and full_name and bumps updated_at.
	UpdateContact(ctx context.Context, id, email, fullName string) error

	UpdateRole(ctx context.Context, id string, role domain.Role) error

	// SetActive toggles the soft-delete flag.
	SetActive(ctx context.Context, id string, active bool) error

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// SetTwoFactorSecret stores a pending enrollment secret without touching
	// the enabled flag. A later call silently replaces an unconfirmed secret.
	SetTwoFactorSecret(ctx context.Context, id string, secret string) error

	// EnableTwoFactor flips two_factor_enabled after a verified enrollment.
	EnableTwoFactor(ctx context.Context, id string) error

	// DisableTwoFactor clears both the secret and the flag.
	DisableTwoFactor(ctx context.Context, id string) error

	// IncrementFailedAttempts atomically bumps the failure counter and
	// returns the new value. Callers run it inside WithTx together with the
	// lock-window check so concurrent failures cannot lose updates.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)

	// SetLock sets locked_until and resets failed_attempts to zero, so the
	// counter always reflects attempts since the last lock.
	SetLock(ctx context.Context, id string, until time.Time) error

	// ClearLock clears both lockout fields atomically. Clearing an already
	// clear record is a no-op, not an error.
	ClearLock(ctx context.Context, id string) error

	// ListProfiles returns all profiles ordered by creation date (newest first).
	ListProfiles(ctx context.Context) ([]domain.Profile, error)

	// DeleteProfile hard-deletes; credentials cascade per schema. Soft
	// deletes go through SetActive.
	DeleteProfile(ctx context.Context, id string) error

	// HasRoot reports whether the bootstrap root profile exists yet.
	HasRoot(ctx context.Context) (bool, error)

	IsEmpty(ctx context.Context) (bool, error)
}

type Credentials interface {
	// GetPasswordHash returns the argon2 hash for a profile.
	GetPasswordHash(ctx context.Context, profileID string) (string, error)

	CreateCredential(ctx context.Context, profileID, passwordHash string) error

	UpdatePasswordHash(ctx context.Context, profileID, passwordHash string) error
}

type Activity interface {
	// Insert appends an immutable audit entry.
	Insert(ctx context.Context, e domain.ActivityLogEntry) error

	// Query returns entries matching the filter, newest first.
	Query(ctx context.Context, f domain.ActivityFilter) ([]domain.ActivityLogEntry, error)

	// DeleteOlderThan prunes entries created before cutoff and reports how
	// many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
