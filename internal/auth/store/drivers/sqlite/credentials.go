package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/store"
)

type credentialsRepo struct {
	q querier
}

func (r *credentialsRepo) GetPasswordHash(ctx context.Context, profileID string) (string, error) {
	var hash string
	err := r.q.QueryRowContext(ctx,
		`SELECT password_hash FROM credentials WHERE profile_id = ?`, profileID).Scan(&hash)
	if err != nil {
		return "", mapNotFound(err)
	}
	return hash, nil
}

func (r *credentialsRepo) CreateCredential(ctx context.Context, profileID, passwordHash string) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO credentials (profile_id, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?)`, profileID, passwordHash, now, now)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *credentialsRepo) UpdatePasswordHash(ctx context.Context, profileID, passwordHash string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE credentials SET password_hash = ?, updated_at = ?
		WHERE profile_id = ?`, passwordHash, time.Now().UTC(), profileID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}
