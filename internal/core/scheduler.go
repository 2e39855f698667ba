package core

// scheduler.go runs refreshes in the background.
//
// The scheduler is long-running and context-aware for graceful shutdown. A
// failed refresh is logged and retried at the next tick; it never stops the
// scheduler. Scheduled refreshes go through Refresh, so they share an
// in-flight execution with refreshes triggered by users.

import (
	"context"
	"log/slog"
	"time"
)

// SchedulerConfig controls the background refresh.
type SchedulerConfig struct {
	Interval   time.Duration // Time between refreshes; zero disables the scheduler
	RunOnStart bool          // Refresh once immediately
}

// StartRefreshScheduler refreshes every cfg.Interval until ctx is cancelled.
// It blocks; run it in its own goroutine. It returns at once when the
// interval is not positive.
func (s *Service) StartRefreshScheduler(ctx context.Context, cfg SchedulerConfig) {
	if cfg.Interval <= 0 {
		return
	}
	slog.Info("refresh scheduler started",
		"interval", cfg.Interval.String(),
		"run_on_start", cfg.RunOnStart,
	)

	if cfg.RunOnStart {
		s.runScheduledRefresh(ctx)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduledRefresh(ctx)
		}
	}
}

// runScheduledRefresh performs one refresh and logs its outcome.
func (s *Service) runScheduledRefresh(ctx context.Context) {
	start := time.Now()
	res, err := s.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("scheduled refresh failed",
			"error", err,
			"code", MapError(err).Code,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Info("scheduled refresh completed",
		"admitted", res.Admitted,
		"values", res.Values,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
