package domain

import "time"

// Role is the coarse authorization level of a profile. Exactly one profile
// holds RoleRoot (the bootstrap administrator); it can never be deleted or
// demoted.
type Role string

const (
	RoleRoot  Role = "root"
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleRoot, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// Privileged reports whether the role may act on accounts other than its own.
func (r Role) Privileged() bool {
	return r == RoleRoot || r == RoleAdmin
}

// Profile is the durable identity record for an account. The credential
// (password hash) lives behind the identity verifier boundary, not here.
type Profile struct {
	ID       string
	Username string
	Email    string
	FullName string
	Role     Role
	Active   bool

	// TwoFactorSecret is set when an enrollment has been started; it stays
	// "pending" until a code verification flips TwoFactorEnabled.
	TwoFactorEnabled bool
	TwoFactorSecret  *string // base32 encoded

	// Lockout record. LockedUntil is lazily cleared on the next check once
	// it has passed; FailedAttempts counts attempts since the last lock or
	// reset, not a cumulative total.
	FailedAttempts int
	LockedUntil    *time.Time

	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the profile is inside an active lock window at t.
func (p Profile) Locked(t time.Time) bool {
	return p.LockedUntil != nil && t.Before(*p.LockedUntil)
}
