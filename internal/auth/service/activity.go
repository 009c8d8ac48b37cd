package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/store"
	"github.com/tallystack/tallyauth/pkg/idx"
)

// ActivityService owns the append-only audit log. Writes are best effort: a
// failed append is logged and swallowed so audit plumbing can never block a
// login or a lockout decision.
type ActivityService struct {
	Store  store.Store
	Logger *slog.Logger

	Now func() time.Time
}

func (s *ActivityService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ActivityService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Record appends an audit entry. ID, CreatedAt and a default severity are
// filled in when the caller leaves them zero. Errors never propagate.
func (s *ActivityService) Record(ctx context.Context, e domain.ActivityLogEntry) {
	if e.ID == "" {
		e.ID = idx.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if e.Severity == "" {
		e.Severity = domain.DefaultSeverity(e.Type)
	}

	if err := s.Store.Activity().Insert(ctx, e); err != nil {
		s.logger().Error("failed to append activity entry",
			"type", e.Type,
			"account_id", e.AccountID,
			"err", err,
		)
	}
}

// Query returns audit entries matching the filter. Non-privileged actors are
// scoped to their own account; asking for another account's entries is a
// permission error, not an empty result.
func (s *ActivityService) Query(ctx context.Context, actor domain.Profile, f domain.ActivityFilter) ([]domain.ActivityLogEntry, error) {
	if !actor.Role.Privileged() {
		if f.AccountID != "" && f.AccountID != actor.ID {
			return nil, domain.ErrPermissionDenied("cannot query another account's activity")
		}
		f.AccountID = actor.ID
	} else if f.AccountID != "" && f.AccountID != actor.ID {
		if !domain.Can(actor.Role, domain.ActionQueryActivity, "") {
			return nil, domain.ErrPermissionDenied("cannot query another account's activity")
		}
	}

	entries, err := s.Store.Activity().Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	return entries, nil
}

// Prune removes entries older than the cutoff and reports how many went.
func (s *ActivityService) Prune(ctx context.Context, actor domain.Profile, cutoff time.Time) (int64, error) {
	if !domain.Can(actor.Role, domain.ActionPruneActivity, "") {
		return 0, domain.ErrPermissionDenied("cannot prune the activity log")
	}

	n, err := s.Store.Activity().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune activity log: %w", err)
	}
	return n, nil
}
