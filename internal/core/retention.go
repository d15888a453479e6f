package core

// retention.go removes stored uploads once they are no longer needed.
//
// Uploads stay on disk between preview and import. The retention scheduler
// runs once at startup and then every Interval, deleting files older than
// MaxAge. Failures are logged and never stop the scheduler.

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper deletes stored uploads older than maxAge and reports how many it removed.
type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// RetentionConfig holds settings for the retention scheduler.
type RetentionConfig struct {
	MaxAge   time.Duration // How long uploads are kept (default: 24h)
	Interval time.Duration // How often to sweep (default: 1h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// StartRetentionScheduler sweeps expired uploads until ctx is cancelled.
// It blocks; run it in its own goroutine. Stores that cannot sweep are
// left alone.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	sw, ok := s.files.(Sweeper)
	if !ok {
		slog.Warn("upload store does not support retention; scheduler not started")
		return
	}
	runRetention(ctx, sw, cfg.withDefaults())
}

func runRetention(ctx context.Context, sw Sweeper, cfg RetentionConfig) {
	slog.Info("retention scheduler started",
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.Interval.String(),
	)

	sweepOnce(ctx, sw, cfg.MaxAge)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			sweepOnce(ctx, sw, cfg.MaxAge)
		}
	}
}

// sweepOnce performs one sweep and logs the result.
func sweepOnce(ctx context.Context, sw Sweeper, maxAge time.Duration) {
	start := time.Now()
	removed, err := sw.Sweep(ctx, maxAge)
	if err != nil {
		slog.Error("upload sweep failed", "error", err, "removed", removed)
		return
	}
	slog.Info("upload sweep completed",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
