package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
)

type activityRepo struct {
	q querier
}

func (r *activityRepo) Insert(ctx context.Context, e domain.ActivityLogEntry) error {
	var details sql.NullString
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO activity_log (
			id, account_id, username, activity_type, description, severity,
			details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, e.Username, string(e.Type), e.Description,
		string(e.Severity), details, e.CreatedAt.UTC(),
	)
	return err
}

func (r *activityRepo) Query(ctx context.Context, f domain.ActivityFilter) ([]domain.ActivityLogEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Type != "" {
		conds = append(conds, "activity_type = ?")
		args = append(args, string(f.Type))
	}
	if f.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.To.UTC())
	}

	query := `SELECT id, account_id, username, activity_type, description,
		severity, details, created_at FROM activity_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityLogEntry
	for rows.Next() {
		var (
			e        domain.ActivityLogEntry
			typ      string
			severity string
			details  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Username, &typ,
			&e.Description, &severity, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = domain.ActivityType(typ)
		e.Severity = domain.Severity(severity)
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *activityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM activity_log WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
