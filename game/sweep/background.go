package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WakeHost is the external periodic-wake mechanism. Wake frequency is not
// guaranteed; earliestAfter is a request, not a promise.
type WakeHost interface {
	RequestWake(earliestAfter time.Duration) error
}

// Background applies the same sweep as the foreground runner but assumes no
// continuity between wakes: every pass re-fetches assignments and progress
// cold from the store.
type Background struct {
	sweeper *Sweeper
	host    WakeHost
	spacing time.Duration
	logger  *zap.Logger
}

// NewBackground creates a background sweeper.
func NewBackground(s *Sweeper, host WakeHost, spacing time.Duration, logger *zap.Logger) *Background {
	return &Background{sweeper: s, host: host, spacing: spacing, logger: logger}
}

// OnWake handles one host wake. The next wake is requested before any
// per-instance work, so a crash or deadline overrun mid-sweep does not
// forfeit future wakes. signalDone reports definitive success or failure to
// the host and is always called.
func (b *Background) OnWake(ctx context.Context, deadline time.Time, signalDone func(success bool)) {
	if err := b.host.RequestWake(b.spacing); err != nil {
		b.logger.Error("background sweep: request next wake failed", zap.Error(err))
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	success := true
	defer func() { signalDone(success) }()

	assignments, err := b.sweeper.store.ActiveAssignments(ctx)
	if err != nil {
		b.logger.Error("background sweep: fetch assignments failed", zap.Error(err))
		success = false
		return
	}

	for i := range assignments {
		if ctx.Err() != nil {
			success = false
			return
		}
		a := &assignments[i]
		instances, err := b.sweeper.store.ProgressByAssignment(ctx, a.ID)
		if err != nil {
			// One assignment failing to load must not block the rest.
			b.logger.Warn("background sweep: fetch progress failed",
				zap.String("assignment_id", a.ID), zap.Error(err))
			success = false
			continue
		}
		if _, failed := b.sweeper.Reconcile(ctx, instances); failed > 0 {
			success = false
		}
	}
}
