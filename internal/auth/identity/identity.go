// Package identity is the credential-verifier boundary. The login flow only
// ever sees an opaque success/failure from Verify; everything else about the
// credential backend stays behind this interface so a managed identity
// provider could replace the local implementation.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBadCredential covers both "no such credential" and "wrong secret".
	// The verifier never discloses which, so callers cannot enumerate
	// accounts through it.
	ErrBadCredential = errors.New("identity: credential verification failed")

	// ErrUnavailable wraps infrastructure faults in the credential backend.
	ErrUnavailable = errors.New("identity: backend unavailable")
)

// EventType classifies asynchronous auth-change notifications, the mechanism
// that keeps concurrent consumers of the same identity store consistent
// without polling.
type EventType string

const (
	EventSignedIn          EventType = "signed_in"
	EventSignedOut         EventType = "signed_out"
	EventCredentialChanged EventType = "credential_changed"
)

type Event struct {
	Type      EventType
	AccountID string
	At        time.Time
}

// Verifier is the external credential store seen from the login flow.
type Verifier interface {
	// Verify checks secret against the credential for accountID. It returns
	// nil on success, ErrBadCredential on any mismatch, and an error
	// wrapping ErrUnavailable on infrastructure faults.
	Verify(ctx context.Context, accountID, secret string) error

	CreateCredential(ctx context.Context, accountID, secret string) error

	UpdateCredential(ctx context.Context, accountID, secret string) error

	// Subscribe registers for auth-change events. The returned cancel
	// function must be called to release the subscription.
	Subscribe() (<-chan Event, func())
}

// Notifier publishes auth-change events to subscribers. The local verifier
// implements it; with a managed provider the events arrive from outside.
type Notifier interface {
	Broadcast(e Event)
}
