package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/store"
	"github.com/tallystack/tallyauth/pkg/cryptox"
)

// subscriberBuffer bounds each subscriber channel; a slow subscriber drops
// events rather than blocking the auth path.
const subscriberBuffer = 16

// LocalVerifier implements Verifier against the relational store using
// peppered Argon2id hashes.
type LocalVerifier struct {
	Store store.Store

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewLocalVerifier(st store.Store) *LocalVerifier {
	return &LocalVerifier{
		Store: st,
		subs:  make(map[int]chan Event),
	}
}

func (v *LocalVerifier) Verify(ctx context.Context, accountID, secret string) error {
	hash, err := v.Store.Credentials().GetPasswordHash(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrBadCredential
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := cryptox.VerifyPassword(secret, hash); err != nil {
		return ErrBadCredential
	}
	return nil
}

func (v *LocalVerifier) CreateCredential(ctx context.Context, accountID, secret string) error {
	hash, err := cryptox.HashPassword(secret)
	if err != nil {
		return fmt.Errorf("failed to hash credential: %w", err)
	}
	if err := v.Store.Credentials().CreateCredential(ctx, accountID, hash); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (v *LocalVerifier) UpdateCredential(ctx context.Context, accountID, secret string) error {
	hash, err := cryptox.HashPassword(secret)
	if err != nil {
		return fmt.Errorf("failed to hash credential: %w", err)
	}
	if err := v.Store.Credentials().UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	v.Broadcast(Event{Type: EventCredentialChanged, AccountID: accountID, At: time.Now().UTC()})
	return nil
}

func (v *LocalVerifier) Subscribe() (<-chan Event, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	ch := make(chan Event, subscriberBuffer)
	v.subs[id] = ch

	cancel := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Broadcast delivers e to every subscriber without blocking; full channels
// miss the event and catch up on their next reconciliation.
func (v *LocalVerifier) Broadcast(e Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, ch := range v.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
