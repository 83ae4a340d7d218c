package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tydee/tydee-pro/internal/observability"
)

// SweepLockKey names the lock that keeps expiry passes to one runner at a time.
const SweepLockKey = "lock:expire-jobs"

// Sweeper periodically expires jobs that stopped receiving bids without an acceptance.
type Sweeper struct {
	store    Store
	locker   Locker
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	logger   *logrus.Logger
}

// NewSweeper creates a sweeper. A nil locker runs every pass unguarded.
func NewSweeper(store Store, locker Locker, interval, maxAge time.Duration) *Sweeper {
	if locker == nil {
		locker = noopLocker{}
	}
	return &Sweeper{
		store:    store,
		locker:   locker,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   observability.Logger(),
	}
}

// WithClock replaces the sweeper's clock, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// RunOnce expires every job created at or before now minus the maximum age that is
// still accepting bids, and returns the ids it expired. It returns nil, nil when
// another runner holds the sweep lock.
func (s *Sweeper) RunOnce(ctx context.Context) (ids []string, err error) {
	ctx, span := observability.StartSpan(ctx, "marketplace.ExpireJobs")
	defer func() { observability.EndSpan(span, err) }()

	lock, err := s.locker.Obtain(ctx, SweepLockKey, s.interval)
	if errors.Is(err, ErrLockHeld) {
		s.logger.WithField("module", moduleName).Info("expiry pass skipped, lock held elsewhere")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain sweep lock: %w", err)
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			observability.LogError(s.logger, moduleName, "RunOnce", "failed to release sweep lock", nil, rerr)
		}
	}()

	now := s.now().UTC()
	ids, err = s.store.ExpireJobs(ctx, now.Add(-s.maxAge), now)
	if err != nil {
		observability.LogError(s.logger, moduleName, "RunOnce", "expiry batch failed", nil, err)
		return nil, fmt.Errorf("failed to expire jobs: %w", err)
	}

	if len(ids) > 0 {
		s.logger.WithFields(logrus.Fields{"module": moduleName, "expired": len(ids), "jobIds": ids}).Info("expired stale jobs")
	}
	return ids, nil
}

// Run performs a pass immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log := s.logger.WithField("module", moduleName)
	log.WithField("interval", s.interval.String()).Info("expiry sweeper starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("expiry pass failed, retrying next tick")
		}
		select {
		case <-ctx.Done():
			log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

type noopLocker struct{}

func (noopLocker) Obtain(context.Context, string, time.Duration) (Lock, error) {
	return noopLock{}, nil
}

type noopLock struct{}

func (noopLock) Release(context.Context) error { return nil }
