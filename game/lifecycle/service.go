package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/audit"
	"github.com/thomaswakin/SystemAdept-sub000/game/catalog"
	"github.com/thomaswakin/SystemAdept-sub000/game/reward"
	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// completeFrom lists the states Complete accepts. inProgress is a reserved
// pass-through state: the engine never sets it but does not reject it.
var completeFrom = []string{model.ProgressAvailable, model.ProgressInProgress}

// Service owns the per-instance quest lifecycle:
// locked → available → {completed | failed}, plus restart of failed
// instances. All writes go through the store adapter as guarded field
// updates, so racing writers resolve at the store, not here.
type Service struct {
	store   *store.Store
	catalog *catalog.Catalog
	audit   *audit.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a lifecycle Service.
func NewService(st *store.Store, cat *catalog.Catalog, aud *audit.Service, logger *zap.Logger) *Service {
	return &Service{store: st, catalog: cat, audit: aud, logger: logger, now: time.Now}
}

// SetClock overrides the wall clock, for tests.
func (svc *Service) SetClock(now func() time.Time) { svc.now = now }

// Activate transitions a locked instance to available once its availableAt
// has passed. Returns false without error when nothing applied (already
// available, terminal, or not yet due).
func (svc *Service) Activate(ctx context.Context, p *model.QuestProgress) (bool, error) {
	if p.Status != model.ProgressLocked {
		return false, nil
	}
	if p.AvailableAt == nil || p.AvailableAt.After(svc.now()) {
		return false, nil
	}
	ok, err := svc.store.UpdateProgressFieldsIf(ctx, p.ID, p.UserID,
		[]string{model.ProgressLocked},
		map[string]interface{}{"status": model.ProgressAvailable})
	if err != nil {
		return false, fmt.Errorf("activate %s: %w", p.ID, err)
	}
	if ok {
		svc.audit.Log(audit.Entry{
			UserID:     &p.UserID,
			InstanceID: p.ID,
			Action:     "activate",
			FromStatus: model.ProgressLocked,
			ToStatus:   model.ProgressAvailable,
		})
	}
	return ok, nil
}

// Complete finishes an available instance and grants its aura. The status
// write and the aura grant are applied as one all-or-nothing unit. Returns
// the granted aura.
func (svc *Service) Complete(ctx context.Context, instanceID string) (float64, error) {
	p, err := svc.store.Progress(ctx, instanceID)
	if err != nil {
		return 0, err
	}
	if p.Terminal() || p.Status == model.ProgressLocked {
		return 0, fmt.Errorf("complete %s from %s: %w", instanceID, p.Status, ErrInvalidTransition)
	}

	quest, _ := svc.catalog.Quest(p.QuestID)
	if quest == nil {
		return 0, fmt.Errorf("complete %s: quest %q: %w", instanceID, p.QuestID, ErrRecordMalformed)
	}
	aura := reward.Compute(quest.Aura, p.FailedCount, svc.catalog.EffectiveDebuff(p.QuestID))

	applied, err := svc.store.CompleteWithReward(ctx, p.ID, p.UserID, completeFrom, svc.now(), aura)
	if err != nil {
		return 0, fmt.Errorf("complete %s: %w", instanceID, err)
	}
	if !applied {
		// A concurrent writer moved the instance out of a completable state.
		return 0, fmt.Errorf("complete %s: %w", instanceID, ErrInvalidTransition)
	}

	svc.audit.Log(audit.Entry{
		UserID:     &p.UserID,
		InstanceID: p.ID,
		Action:     "complete",
		FromStatus: p.Status,
		ToStatus:   model.ProgressCompleted,
		Detail:     map[string]interface{}{"aura": aura, "quest_id": p.QuestID},
	})
	svc.logger.Info("quest completed",
		zap.String("instance_id", p.ID),
		zap.String("quest_id", p.QuestID),
		zap.Float64("aura", aura))
	return aura, nil
}

// Expire force-fails an overdue instance. Idempotent: expiring an already
// failed instance is a no-op, not an error. Locked and completed instances
// and instances with no expiration time are never touched. Returns whether a
// transition was applied.
func (svc *Service) Expire(ctx context.Context, p *model.QuestProgress) (bool, error) {
	switch p.Status {
	case model.ProgressFailed, model.ProgressCompleted, model.ProgressLocked:
		return false, nil
	}
	if p.ExpirationTime == nil || !svc.now().After(*p.ExpirationTime) {
		return false, nil
	}
	ok, err := svc.store.UpdateProgressFieldsIf(ctx, p.ID, p.UserID, completeFrom,
		map[string]interface{}{
			"status":       model.ProgressFailed,
			"failed_at":    svc.now(),
			"failed_count": gorm.Expr("failed_count + 1"),
		})
	if err != nil {
		return false, fmt.Errorf("expire %s: %w", p.ID, err)
	}
	if ok {
		svc.audit.Log(audit.Entry{
			UserID:     &p.UserID,
			InstanceID: p.ID,
			Action:     "expire",
			FromStatus: p.Status,
			ToStatus:   model.ProgressFailed,
		})
		svc.logger.Info("quest expired",
			zap.String("instance_id", p.ID),
			zap.String("quest_id", p.QuestID))
	}
	return ok, nil
}

// Restart re-creates a failed instance as a fresh available one, carrying
// the accumulated failedCount forward, with a new deadline from now.
func (svc *Service) Restart(ctx context.Context, instanceID string) (*model.QuestProgress, error) {
	p, err := svc.store.Progress(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProgressFailed {
		return nil, fmt.Errorf("restart %s from %s: %w", instanceID, p.Status, ErrInvalidTransition)
	}

	now := svc.now()
	exp := now.Add(svc.catalog.EffectiveTTL(p.QuestID))
	fresh := &model.QuestProgress{
		ID:             uuid.New().String(),
		AssignmentID:   p.AssignmentID,
		UserID:         p.UserID,
		QuestID:        p.QuestID,
		Status:         model.ProgressAvailable,
		AvailableAt:    &now,
		StartTime:      &now,
		ExpirationTime: &exp,
		FailedCount:    p.FailedCount,
	}
	if err := svc.store.CreateProgress(ctx, fresh); err != nil {
		return nil, fmt.Errorf("restart %s: %w", instanceID, err)
	}

	svc.audit.Log(audit.Entry{
		UserID:     &p.UserID,
		InstanceID: fresh.ID,
		Action:     "restart",
		FromStatus: model.ProgressFailed,
		ToStatus:   model.ProgressAvailable,
		Detail:     map[string]interface{}{"previous_instance": p.ID, "failed_count": fresh.FailedCount},
	})
	return fresh, nil
}
