package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tallystack/tallyauth/internal/auth/domain"
)

func TestActivityRecordFillsDefaults(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newActivityService(st)

	svc.Record(ctx, domain.ActivityLogEntry{
		AccountID:   "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Username:    "alice",
		Type:        domain.ActivityAccountLocked,
		Description: "locked",
	})

	entries := queryActivity(t, st, domain.ActivityFilter{})
	require.Len(t, entries, 1)
	require.NotEmpty(t, entries[0].ID)
	require.False(t, entries[0].CreatedAt.IsZero())
	require.Equal(t, domain.SeverityCritical, entries[0].Severity)
}

func TestActivityRecordNeverFails(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newActivityService(st)

	// Closing the store makes inserts fail; Record must swallow it.
	require.NoError(t, st.Close())
	svc.Record(ctx, domain.ActivityLogEntry{Type: domain.ActivityLogin})
}

func TestActivityQueryScoping(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newActivityService(st)

	admin := seedUser(t, st, "admin1", "admin-password-1", domain.RoleAdmin)
	alice := seedUser(t, st, "alice", "user-password-1", domain.RoleUser)
	bob := seedUser(t, st, "bob", "user-password-2", domain.RoleUser)

	svc.Record(ctx, domain.ActivityLogEntry{AccountID: alice.ID, Username: "alice", Type: domain.ActivityLogin})
	svc.Record(ctx, domain.ActivityLogEntry{AccountID: bob.ID, Username: "bob", Type: domain.ActivityLogin})

	t.Run("users see only their own entries", func(t *testing.T) {
		entries, err := svc.Query(ctx, alice, domain.ActivityFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, alice.ID, entries[0].AccountID)
	})

	t.Run("users cannot query other accounts", func(t *testing.T) {
		_, err := svc.Query(ctx, alice, domain.ActivityFilter{AccountID: bob.ID})
		require.Equal(t, domain.KindPermissionDenied, domain.KindOf(err))
	})

	t.Run("admins query across accounts", func(t *testing.T) {
		entries, err := svc.Query(ctx, admin, domain.ActivityFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 2)

		entries, err = svc.Query(ctx, admin, domain.ActivityFilter{AccountID: bob.ID})
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
}

func TestActivityPrune(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newActivityService(st)

	admin := seedUser(t, st, "admin1", "admin-password-1", domain.RoleAdmin)
	user := seedUser(t, st, "alice", "user-password-1", domain.RoleUser)

	old := time.Now().UTC().Add(-48 * time.Hour)
	svc.Record(ctx, domain.ActivityLogEntry{Type: domain.ActivityLogin, CreatedAt: old})
	svc.Record(ctx, domain.ActivityLogEntry{Type: domain.ActivityLogin})

	t.Run("users cannot prune", func(t *testing.T) {
		_, err := svc.Prune(ctx, user, time.Now().UTC())
		require.Equal(t, domain.KindPermissionDenied, domain.KindOf(err))
	})

	t.Run("admins prune old entries", func(t *testing.T) {
		n, err := svc.Prune(ctx, admin, time.Now().UTC().Add(-24*time.Hour))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		entries := queryActivity(t, st, domain.ActivityFilter{})
		require.Len(t, entries, 1)
	})
}
