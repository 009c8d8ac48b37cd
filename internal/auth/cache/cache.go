// Package cache stores the last-known-good profile on local disk so session
// bootstrap can publish a usable state before the backend answers. It holds
// a single serialized profile under a fixed path and is never shared across
// accounts.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
)

const envelopeVersion = 1

type envelope struct {
	Version int            `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	Profile domain.Profile `json:"profile"`
}

// ProfileCache is a file-backed single-profile cache. Writes go through a
// temp file and rename so a crash never leaves a torn entry.
type ProfileCache struct {
	path string
	mu   sync.Mutex
}

func New(path string) *ProfileCache {
	return &ProfileCache{path: filepath.Clean(path)}
}

// Load returns the cached profile, or ok=false when no cache entry exists.
// A corrupt entry is treated as absent and removed.
func (c *ProfileCache) Load() (domain.Profile, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Profile{}, false, nil
		}
		return domain.Profile{}, false, fmt.Errorf("failed to read profile cache: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Version != envelopeVersion {
		_ = os.Remove(c.path)
		return domain.Profile{}, false, nil
	}
	return env.Profile, true, nil
}

// Store persists p as the last-known-good profile. The TOTP secret is
// stripped before writing; the cache exists for session hydration, not as a
// second home for secrets.
func (c *ProfileCache) Store(p domain.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.TwoFactorSecret = nil

	raw, err := json.Marshal(envelope{
		Version: envelopeVersion,
		SavedAt: time.Now().UTC(),
		Profile: p,
	})
	if err != nil {
		return fmt.Errorf("failed to encode profile cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profile-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write profile cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close cache temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set cache permissions: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace profile cache: %w", err)
	}
	return nil
}

// Clear removes the cache entry. Clearing an absent entry is a no-op.
func (c *ProfileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear profile cache: %w", err)
	}
	return nil
}
