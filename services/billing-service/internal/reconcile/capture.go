// Package reconcile heals payments whose Stripe capture outran the local
// record.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
)

type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (bool, func(), error)
}

type Payments interface {
	ListCaptureCandidates(ctx context.Context, grace time.Duration, limit int) ([]payments.Payment, error)
	Reconcile(ctx context.Context, pay payments.Payment) (payments.Payment, error)
}

type Config struct {
	Interval        time.Duration
	Grace           time.Duration
	BatchSize       int
	AdvisoryLockKey int64
	LockRetry       time.Duration
}

type CaptureReconciler struct {
	lock     Locker
	payments Payments
	logger   *slog.Logger
	cfg      Config
}

func NewCaptureReconciler(lock Locker, svc Payments, logger *slog.Logger, cfg Config) *CaptureReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 4242001
	}
	if cfg.LockRetry <= 0 {
		cfg.LockRetry = 30 * time.Second
	}
	return &CaptureReconciler{lock: lock, payments: svc, logger: logger, cfg: cfg}
}

// Run blocks until ctx is done. Only the instance holding the advisory
// lock reconciles; the others keep retrying the lock.
func (r *CaptureReconciler) Run(ctx context.Context) {
	release, ok := r.acquire(ctx)
	if !ok {
		return
	}
	defer release()
	r.logger.Info("capture reconcile: advisory lock acquired", "lock_key", r.cfg.AdvisoryLockKey)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

func (r *CaptureReconciler) acquire(ctx context.Context) (func(), bool) {
	for {
		locked, release, err := r.lock.TryAdvisoryLock(ctx, r.cfg.AdvisoryLockKey)
		switch {
		case err != nil:
			r.logger.Error("capture reconcile: failed to acquire advisory lock", "err", err)
		case locked:
			return release, true
		default:
			r.logger.Debug("capture reconcile: advisory lock held by another instance", "lock_key", r.cfg.AdvisoryLockKey)
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(r.cfg.LockRetry):
		}
	}
}

// RunOnce reconciles one batch and returns how many payments changed state.
func (r *CaptureReconciler) RunOnce(ctx context.Context) int {
	candidates, err := r.payments.ListCaptureCandidates(ctx, r.cfg.Grace, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("capture reconcile: failed to list payments", "err", err)
		return 0
	}
	changed := 0
	for _, pay := range candidates {
		if ctx.Err() != nil {
			return changed
		}
		updated, err := r.payments.Reconcile(ctx, pay)
		if err != nil {
			r.logger.Warn("capture reconcile: payment not reconciled", "appointment_id", pay.AppointmentID, "err", err)
			continue
		}
		if updated.Status != pay.Status {
			changed++
			r.logger.Info("capture reconcile: payment updated",
				"appointment_id", pay.AppointmentID,
				"from", pay.Status,
				"to", updated.Status,
			)
		}
	}
	return changed
}
