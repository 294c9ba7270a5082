package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/scheduler"
	"go.uber.org/zap"
)

// Runner drives foreground reconciliation for one user: it re-sweeps on
// every progress snapshot delivered by the store watch, and opportunistically
// on a fixed interval so an idle collection still expires on time.
type Runner struct {
	sweeper  *Sweeper
	sched    *scheduler.Scheduler
	logger   *zap.Logger
	userID   int64
	interval time.Duration
}

// NewRunner creates a foreground Runner for one user.
func NewRunner(s *Sweeper, sched *scheduler.Scheduler, logger *zap.Logger, userID int64, interval time.Duration) *Runner {
	return &Runner{sweeper: s, sched: sched, logger: logger, userID: userID, interval: interval}
}

// Run blocks until ctx is canceled, reconciling on every snapshot and on the
// interval ticker.
func (r *Runner) Run(ctx context.Context) error {
	snapshots, cancel, err := r.sweeper.store.WatchProgress(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("sweep runner: watch: %w", err)
	}
	defer cancel()

	tickerName := fmt.Sprintf("sweep:user:%d", r.userID)
	r.sched.AddTicker(tickerName, r.interval, func() {
		instances, err := r.sweeper.store.ProgressByUser(context.Background(), r.userID)
		if err != nil {
			r.logger.Warn("sweep tick fetch failed", zap.Int64("user_id", r.userID), zap.Error(err))
			return
		}
		r.sweeper.Reconcile(context.Background(), instances)
	})
	defer r.sched.Remove(tickerName)

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			r.sweeper.Reconcile(ctx, snap)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
