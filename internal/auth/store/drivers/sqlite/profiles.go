package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/store"
)

type profilesRepo struct {
	q querier
}

const profileColumns = `id, username, email, full_name, role, active,
	two_factor_enabled, two_factor_secret, failed_attempts, locked_until,
	last_login, created_at, updated_at`

func scanProfile(row interface{ Scan(dest ...any) error }) (domain.Profile, error) {
	var (
		p           domain.Profile
		role        string
		secret      sql.NullString
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.Username, &p.Email, &p.FullName, &role, &p.Active,
		&p.TwoFactorEnabled, &secret, &p.FailedAttempts, &lockedUntil,
		&lastLogin, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Profile{}, err
	}
	p.Role = domain.Role(role)
	p.TwoFactorSecret = mapNullStringPtr(secret)
	p.LockedUntil = mapNullTimePtr(lockedUntil)
	p.LastLogin = mapNullTimePtr(lastLogin)
	return p, nil
}

func (r *profilesRepo) getBy(ctx context.Context, column, value string) (domain.Profile, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE `+column+` = ?`, value)
	p, err := scanProfile(row)
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	return p, nil
}

func (r *profilesRepo) GetProfileByID(ctx context.Context, id string) (domain.Profile, error) {
	return r.getBy(ctx, "id", id)
}

func (r *profilesRepo) GetProfileByUsername(ctx context.Context, username string) (domain.Profile, error) {
	return r.getBy(ctx, "username", username)
}

func (r *profilesRepo) GetProfileByEmail(ctx context.Context, email string) (domain.Profile, error) {
	return r.getBy(ctx, "email", strings.ToLower(email))
}

func (r *profilesRepo) CreateProfile(ctx context.Context, p domain.Profile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO profiles (
			id, username, email, full_name, role, active,
			two_factor_enabled, two_factor_secret, failed_attempts,
			locked_until, last_login, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Username, strings.ToLower(p.Email), p.FullName, string(p.Role),
		p.Active, p.TwoFactorEnabled, mapOptionalString(p.TwoFactorSecret),
		p.FailedAttempts, mapOptionalTime(p.LockedUntil),
		mapOptionalTime(p.LastLogin), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *profilesRepo) UpdateContact(ctx context.Context, id, email, fullName string) error {
	return r.exec(ctx, `
		UPDATE profiles SET email = ?, full_name = ?, updated_at = ?
		WHERE id = ?`, strings.ToLower(email), fullName, time.Now().UTC(), id)
}

func (r *profilesRepo) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	return r.exec(ctx, `
		UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), id)
}

func (r *profilesRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.exec(ctx, `
		UPDATE profiles SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
}

func (r *profilesRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `
		UPDATE profiles SET last_login = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
}

func (r *profilesRepo) SetTwoFactorSecret(ctx context.Context, id string, secret string) error {
	return r.exec(ctx, `
		UPDATE profiles SET two_factor_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), id)
}

func (r *profilesRepo) EnableTwoFactor(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE profiles SET two_factor_enabled = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
}

func (r *profilesRepo) DisableTwoFactor(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE profiles
		SET two_factor_enabled = 0, two_factor_secret = NULL, updated_at = ?
		WHERE id = ?`, time.Now().UTC(), id)
}

func (r *profilesRepo) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.q.QueryRowContext(ctx, `
		UPDATE profiles
		SET failed_attempts = failed_attempts + 1, updated_at = ?
		WHERE id = ?
		RETURNING failed_attempts`, time.Now().UTC(), id).Scan(&attempts)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *profilesRepo) SetLock(ctx context.Context, id string, until time.Time) error {
	return r.exec(ctx, `
		UPDATE profiles
		SET locked_until = ?, failed_attempts = 0, updated_at = ?
		WHERE id = ?`, until.UTC(), time.Now().UTC(), id)
}

func (r *profilesRepo) ClearLock(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE profiles
		SET locked_until = NULL, failed_attempts = 0, updated_at = ?
		WHERE id = ?`, time.Now().UTC(), id)
}

func (r *profilesRepo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *profilesRepo) DeleteProfile(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM profiles WHERE id = ?`, id)
}

func (r *profilesRepo) HasRoot(ctx context.Context) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE role = ?`, string(domain.RoleRoot)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *profilesRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *profilesRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}
