package sweep

import (
	"context"

	"github.com/thomaswakin/SystemAdept-sub000/game/lifecycle"
	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"go.uber.org/zap"
)

// Sweeper force-fails overdue quest instances. It holds no state of its own:
// every pass re-derives expiry from wall clock against the instances it is
// handed, so it behaves the same whether the process was running or suspended
// since the last pass.
type Sweeper struct {
	store     *store.Store
	lifecycle *lifecycle.Service
	logger    *zap.Logger
}

// New creates a Sweeper.
func New(st *store.Store, lc *lifecycle.Service, logger *zap.Logger) *Sweeper {
	return &Sweeper{store: st, lifecycle: lc, logger: logger}
}

// Sweep expires every instance with a set expiration in the past that is not
// already terminal. A failed write on one instance never blocks the others:
// it is logged and the next pass retries naturally. Returns the number of
// instances expired and the number of write failures.
func (s *Sweeper) Sweep(ctx context.Context, instances []model.QuestProgress) (expired, failed int) {
	for i := range instances {
		p := &instances[i]
		if p.ExpirationTime == nil || p.Terminal() {
			continue
		}
		ok, err := s.lifecycle.Expire(ctx, p)
		if err != nil {
			failed++
			s.logger.Warn("sweep expire failed",
				zap.String("instance_id", p.ID),
				zap.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, failed
}

// Reconcile runs one full pass over a set of instances: due locked instances
// become available, overdue ones are expired.
func (s *Sweeper) Reconcile(ctx context.Context, instances []model.QuestProgress) (expired, failed int) {
	for i := range instances {
		p := &instances[i]
		if p.Status != model.ProgressLocked {
			continue
		}
		if _, err := s.lifecycle.Activate(ctx, p); err != nil {
			s.logger.Warn("sweep activate failed",
				zap.String("instance_id", p.ID),
				zap.Error(err))
		}
	}
	return s.Sweep(ctx, instances)
}
