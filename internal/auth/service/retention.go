package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/store"
)

// RetentionService periodically prunes old activity log entries so the
// audit table does not grow without bound. Entries older than MaxAge are
// removed; the log is append-only in every other respect.
type RetentionService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	MaxAge   time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRetentionService creates a retention worker. Interval defaults to 1
// hour and MaxAge to 90 days when zero or negative.
func NewRetentionService(st store.Store, logger *slog.Logger, interval, maxAge time.Duration) *RetentionService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if maxAge <= 0 {
		maxAge = 90 * 24 * time.Hour
	}

	return &RetentionService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		MaxAge:   maxAge,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *RetentionService) Start() {
	go s.run()
	s.Logger.Info("retention service started", "interval", s.Interval, "max_age", s.MaxAge)
}

// Stop gracefully shuts down the worker, waiting for an in-progress prune.
func (s *RetentionService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("retention service stopped")
}

func (s *RetentionService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Prune immediately on startup.
	s.prune()

	for {
		select {
		case <-ticker.C:
			s.prune()
		case <-s.stopCh:
			return
		}
	}
}

func (s *RetentionService) prune() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-s.MaxAge)

	n, err := s.Store.Activity().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to prune activity log", "error", err)
		return
	}
	if n > 0 {
		s.Logger.Info("pruned activity log", "deleted", n, "cutoff", cutoff)
	}
}
