package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tallystack/tallyauth/internal/auth/domain"
)

func testProfile() domain.Profile {
	secret := "JBSWY3DPEHPK3PXP"
	last := time.Date(2026, 2, 28, 8, 30, 0, 0, time.UTC)
	return domain.Profile{
		ID:               "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Username:         "alice",
		Email:            "alice@example.com",
		Role:             domain.RoleAdmin,
		Active:           true,
		TwoFactorEnabled: true,
		TwoFactorSecret:  &secret,
		LastLogin:        &last,
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "profile.json"))

	_, ok, err := c.Load()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Store(testProfile()))

	got, ok, err := c.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, domain.RoleAdmin, got.Role)
	require.True(t, got.TwoFactorEnabled)
}

func TestStoreStripsTwoFactorSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	c := New(path)

	require.NoError(t, c.Store(testProfile()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "JBSWY3DPEHPK3PXP")

	got, ok, err := c.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, got.TwoFactorSecret)
}

func TestCorruptEntryTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	c := New(path)
	_, ok, err := c.Load()
	require.NoError(t, err)
	require.False(t, ok)

	// The corrupt file is removed, not left to fail again.
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestVersionMismatchTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"profile":{}}`), 0o600))

	c := New(path)
	_, ok, err := c.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClear(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "profile.json"))

	// Clearing an absent entry is a no-op.
	require.NoError(t, c.Clear())

	require.NoError(t, c.Store(testProfile()))
	require.NoError(t, c.Clear())

	_, ok, err := c.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	c := New(path)
	require.NoError(t, c.Store(testProfile()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
