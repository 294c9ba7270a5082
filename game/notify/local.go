package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/cache"
	"github.com/thomaswakin/SystemAdept-sub000/scheduler"
	"go.uber.org/zap"
)

// LocalHost delivers notifications in-process: pending items ride the shared
// scheduler as named delay tasks and fire into pub/sub, where the SSE layer
// picks them up. One LocalHost serves one user.
type LocalHost struct {
	userID int64
	sched  *scheduler.Scheduler
	ps     cache.PubSub
	kv     cache.Cache
	logger *zap.Logger
}

// NewLocalHost creates a LocalHost for one user.
func NewLocalHost(userID int64, sched *scheduler.Scheduler, ps cache.PubSub, kv cache.Cache, logger *zap.Logger) *LocalHost {
	return &LocalHost{userID: userID, sched: sched, ps: ps, kv: kv, logger: logger}
}

func (h *LocalHost) pendingKey() string {
	return fmt.Sprintf("notify:pending:%d", h.userID)
}

func (h *LocalHost) taskName(id string) string {
	return fmt.Sprintf("notify:%d:%s", h.userID, id)
}

// ScheduleAt schedules a notification. An already-pending notification with
// the same ID is replaced; a FireAt in the past fires immediately.
func (h *LocalHost) ScheduleAt(ctx context.Context, n Notification) error {
	if err := h.kv.SAdd(ctx, h.pendingKey(), n.ID); err != nil {
		return fmt.Errorf("track pending notification: %w", err)
	}
	delay := time.Until(n.FireAt)
	if delay < 0 {
		delay = 0
	}
	h.sched.AddDelay(h.taskName(n.ID), delay, func() {
		h.fire(n)
	})
	return nil
}

func (h *LocalHost) fire(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.kv.SRem(ctx, h.pendingKey(), n.ID); err != nil {
		h.logger.Warn("untrack fired notification failed", zap.String("id", n.ID), zap.Error(err))
	}
	payload, err := json.Marshal(Event{
		ID:      n.ID,
		Title:   n.Title,
		Body:    n.Body,
		Payload: n.Payload,
		FiredAt: time.Now(),
	})
	if err != nil {
		h.logger.Error("encode notification event failed", zap.String("id", n.ID), zap.Error(err))
		return
	}
	if err := h.ps.Publish(ctx, EventChannel(h.userID), string(payload)); err != nil {
		h.logger.Warn("publish notification event failed", zap.String("id", n.ID), zap.Error(err))
	}
}

// Cancel removes pending notifications by ID. Unknown IDs are ignored.
func (h *LocalHost) Cancel(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		h.sched.Remove(h.taskName(id))
	}
	return h.kv.SRem(ctx, h.pendingKey(), ids...)
}

// ListPending returns the IDs of notifications scheduled but not yet fired.
func (h *LocalHost) ListPending(ctx context.Context) ([]string, error) {
	return h.kv.SMembers(ctx, h.pendingKey())
}
