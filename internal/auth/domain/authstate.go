package domain

// Phase tracks the session bootstrap lifecycle explicitly so cache-then-
// reconcile precedence is enforced by state, not by callback timing.
type Phase string

const (
	// PhaseStarting is the initial state before any hydration happened.
	PhaseStarting Phase = "starting"
	// PhaseHydrated means a cached profile was published optimistically and
	// reconciliation against the source of truth is still outstanding.
	PhaseHydrated Phase = "hydrated"
	// PhaseReconciled means the source of truth answered (or the watchdog
	// fired and the cached state was kept).
	PhaseReconciled Phase = "reconciled"
)

// AuthState is the single in-memory view of the current session. It has one
// logical writer (the session manager); everyone else reads snapshots.
type AuthState struct {
	Phase Phase

	CurrentAccount  *Profile
	IsAuthenticated bool
	IsLoading       bool
	Error           string

	// Verifying2FA is true while a two-factor challenge is outstanding;
	// PendingAccount holds the resolved profile until the code is verified.
	Verifying2FA   bool
	PendingAccount *Profile

	PasswordChangeRequired bool
}

// Anonymous returns the signed-out state.
func Anonymous() AuthState {
	return AuthState{Phase: PhaseReconciled}
}
