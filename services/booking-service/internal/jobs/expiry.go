// Package jobs holds booking's background maintenance loops.
package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes notifications whose soft expiry has passed.
type Purger interface {
	DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
}

type ExpiryWorkerConfig struct {
	Interval time.Duration
}

// ExpiryWorker periodically removes expired notification rows.
type ExpiryWorker struct {
	purger   Purger
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewExpiryWorker(purger Purger, logger *slog.Logger, cfg ExpiryWorkerConfig) *ExpiryWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &ExpiryWorker{
		purger:   purger,
		logger:   logger,
		interval: cfg.Interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	n, err := w.purger.DeleteExpiredNotifications(ctx, w.now())
	if err != nil {
		w.logger.Error("notification expiry sweep failed", "err", err)
		return
	}
	if n > 0 {
		w.logger.Info("expired notifications purged", "count", n)
	}
}
