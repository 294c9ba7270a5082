package assign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/audit"
	"github.com/thomaswakin/SystemAdept-sub000/game/catalog"
	"github.com/thomaswakin/SystemAdept-sub000/game/lifecycle"
	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownSystem is returned when the requested system is not in the
// catalog.
var ErrUnknownSystem = errors.New("unknown quest system")

// ErrAlreadyAssigned is returned when the user already holds a live
// assignment for the system.
var ErrAlreadyAssigned = errors.New("system already assigned")

// Service manages system assignments: selection with instance seeding,
// pause/resume/stop, rank unlocking and assignment auto-completion.
type Service struct {
	store   *store.Store
	catalog *catalog.Catalog
	audit   *audit.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates an assignment Service.
func NewService(st *store.Store, cat *catalog.Catalog, aud *audit.Service, logger *zap.Logger) *Service {
	return &Service{store: st, catalog: cat, audit: aud, logger: logger, now: time.Now}
}

// SetClock overrides the wall clock, for tests.
func (svc *Service) SetClock(now func() time.Time) { svc.now = now }

// Select subscribes the user to a quest system: creates the assignment and
// seeds one instance per quest. The lowest rank starts available with a
// deadline; higher ranks start locked with no unlock time until the rank
// below completes.
func (svc *Service) Select(ctx context.Context, userID int64, systemID string) (*model.ActiveSystemAssignment, error) {
	system := svc.catalog.System(systemID)
	if system == nil {
		return nil, fmt.Errorf("select %s: %w", systemID, ErrUnknownSystem)
	}

	existing, err := svc.store.AssignmentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", systemID, err)
	}
	for i := range existing {
		a := &existing[i]
		if a.SystemID == systemID &&
			(a.Status == model.AssignmentActive || a.Status == model.AssignmentPaused) {
			return nil, fmt.Errorf("select %s: %w", systemID, ErrAlreadyAssigned)
		}
	}

	now := svc.now()
	assignment := &model.ActiveSystemAssignment{
		ID:           uuid.New().String(),
		UserID:       userID,
		SystemID:     systemID,
		Name:         system.Name,
		UserSelected: true,
		Status:       model.AssignmentActive,
	}

	ranks := svc.catalog.Ranks(systemID)
	var instances []*model.QuestProgress
	for i, rank := range ranks {
		for _, quest := range svc.catalog.QuestsAtRank(systemID, rank) {
			p := &model.QuestProgress{
				ID:           uuid.New().String(),
				AssignmentID: assignment.ID,
				UserID:       userID,
				QuestID:      quest.ID,
				Status:       model.ProgressLocked,
			}
			if i == 0 {
				exp := now.Add(svc.catalog.EffectiveTTL(quest.ID))
				p.Status = model.ProgressAvailable
				p.AvailableAt = &now
				p.StartTime = &now
				p.ExpirationTime = &exp
				if assignment.CurrentQuestID == nil {
					qid := quest.ID
					assignment.CurrentQuestID = &qid
				}
			}
			instances = append(instances, p)
		}
	}

	if err := svc.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, fmt.Errorf("select %s: %w", systemID, err)
	}
	if err := svc.store.CreateProgress(ctx, instances...); err != nil {
		return nil, fmt.Errorf("select %s: seed instances: %w", systemID, err)
	}

	svc.audit.Log(audit.Entry{
		UserID:     &userID,
		InstanceID: assignment.ID,
		Action:     "assignment_select",
		ToStatus:   model.AssignmentActive,
		Detail:     map[string]interface{}{"system_id": systemID, "instances": len(instances)},
	})
	svc.logger.Info("system assigned",
		zap.Int64("user_id", userID),
		zap.String("system_id", systemID),
		zap.String("assignment_id", assignment.ID),
		zap.Int("instances", len(instances)))
	return assignment, nil
}

// Pause suspends an active assignment.
func (svc *Service) Pause(ctx context.Context, userID int64, assignmentID string) error {
	return svc.transition(ctx, userID, assignmentID,
		[]string{model.AssignmentActive}, model.AssignmentPaused, "assignment_pause")
}

// Resume reactivates a paused assignment.
func (svc *Service) Resume(ctx context.Context, userID int64, assignmentID string) error {
	return svc.transition(ctx, userID, assignmentID,
		[]string{model.AssignmentPaused}, model.AssignmentActive, "assignment_resume")
}

// Stop terminally ends an active or paused assignment. The row is kept for
// history.
func (svc *Service) Stop(ctx context.Context, userID int64, assignmentID string) error {
	return svc.transition(ctx, userID, assignmentID,
		[]string{model.AssignmentActive, model.AssignmentPaused}, model.AssignmentStopped, "assignment_stop")
}

func (svc *Service) transition(ctx context.Context, userID int64, assignmentID string,
	from []string, to string, action string) error {
	a, err := svc.store.Assignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return store.ErrNotFound
	}
	legal := false
	for _, s := range from {
		if a.Status == s {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%s %s from %s: %w", action, assignmentID, a.Status, lifecycle.ErrInvalidTransition)
	}
	if err := svc.store.UpdateAssignmentFields(ctx, assignmentID, userID,
		map[string]interface{}{"status": to}); err != nil {
		return fmt.Errorf("%s %s: %w", action, assignmentID, err)
	}
	svc.audit.Log(audit.Entry{
		UserID:     &userID,
		InstanceID: assignmentID,
		Action:     action,
		FromStatus: a.Status,
		ToStatus:   to,
	})
	return nil
}

// questState is the effective per-quest view over possibly many instances
// (restart creates fresh rows): a completed instance wins, otherwise the
// newest row speaks for the quest.
func questState(instances []model.QuestProgress) map[string]*model.QuestProgress {
	state := make(map[string]*model.QuestProgress)
	for i := range instances {
		p := &instances[i]
		cur, ok := state[p.QuestID]
		switch {
		case !ok:
			state[p.QuestID] = p
		case cur.Status == model.ProgressCompleted:
			// settled
		case p.Status == model.ProgressCompleted:
			state[p.QuestID] = p
		case p.CreatedAt.After(cur.CreatedAt):
			state[p.QuestID] = p
		}
	}
	return state
}

// Reconcile brings an assignment's derived state up to date after instance
// changes: unlocks the next rank once a rank fully completes (scheduling each
// unlock cooldown-aware), maintains CurrentQuestID, and completes the
// assignment once every quest is completed.
func (svc *Service) Reconcile(ctx context.Context, assignmentID string) error {
	a, err := svc.store.Assignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if a.Status != model.AssignmentActive {
		return nil
	}
	instances, err := svc.store.ProgressByAssignment(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", assignmentID, err)
	}

	state := questState(instances)
	now := svc.now()

	allDone := true
	for _, rank := range svc.catalog.Ranks(a.SystemID) {
		quests := svc.catalog.QuestsAtRank(a.SystemID, rank)
		rankDone := true
		for _, q := range quests {
			p := state[q.ID]
			if p == nil || p.Status != model.ProgressCompleted {
				rankDone = false
			}
		}
		if rankDone {
			continue
		}
		allDone = false

		// First incomplete rank: give its dormant locked quests an unlock
		// time, honoring each quest's cooldown.
		for _, q := range quests {
			p := state[q.ID]
			if p == nil || p.Status != model.ProgressLocked || p.AvailableAt != nil {
				continue
			}
			at := now.Add(svc.catalog.EffectiveCooldown(q.ID))
			if err := svc.store.UpdateProgressFields(ctx, p.ID, p.UserID,
				map[string]interface{}{"available_at": at}); err != nil {
				svc.logger.Warn("rank unlock write failed",
					zap.String("instance_id", p.ID), zap.Error(err))
				continue
			}
			svc.audit.Log(audit.Entry{
				UserID:     &p.UserID,
				InstanceID: p.ID,
				Action:     "rank_unlock",
				Detail:     map[string]interface{}{"quest_id": q.ID, "available_at": at},
			})
		}
		break
	}

	if allDone {
		if err := svc.store.UpdateAssignmentFields(ctx, assignmentID, a.UserID,
			map[string]interface{}{"status": model.AssignmentCompleted, "current_quest_id": nil}); err != nil {
			return fmt.Errorf("reconcile %s: complete assignment: %w", assignmentID, err)
		}
		svc.audit.Log(audit.Entry{
			UserID:     &a.UserID,
			InstanceID: assignmentID,
			Action:     "assignment_complete",
			FromStatus: model.AssignmentActive,
			ToStatus:   model.AssignmentCompleted,
		})
		svc.logger.Info("assignment completed",
			zap.String("assignment_id", assignmentID),
			zap.String("system_id", a.SystemID))
		return nil
	}

	return svc.updateCurrentQuest(ctx, a, state, now)
}

// selectable reports whether the instance can be pointed at as the current
// quest: available instances additionally need availableAt absent or past.
func selectable(p *model.QuestProgress, now time.Time) bool {
	switch p.Status {
	case model.ProgressInProgress:
		return true
	case model.ProgressAvailable:
		return p.AvailableAt == nil || !p.AvailableAt.After(now)
	}
	return false
}

// updateCurrentQuest points CurrentQuestID at the first actionable quest in
// rank order, clearing it when none is.
func (svc *Service) updateCurrentQuest(ctx context.Context, a *model.ActiveSystemAssignment, state map[string]*model.QuestProgress, now time.Time) error {
	var next *string
	for _, rank := range svc.catalog.Ranks(a.SystemID) {
		for _, q := range svc.catalog.QuestsAtRank(a.SystemID, rank) {
			p := state[q.ID]
			if p == nil {
				continue
			}
			if selectable(p, now) {
				qid := q.ID
				next = &qid
				break
			}
		}
		if next != nil {
			break
		}
	}

	changed := (a.CurrentQuestID == nil) != (next == nil) ||
		(a.CurrentQuestID != nil && next != nil && *a.CurrentQuestID != *next)
	if !changed {
		return nil
	}
	var value interface{}
	if next != nil {
		value = *next
	}
	if err := svc.store.UpdateAssignmentFields(ctx, a.ID, a.UserID,
		map[string]interface{}{"current_quest_id": value}); err != nil {
		return fmt.Errorf("update current quest on %s: %w", a.ID, err)
	}
	return nil
}
