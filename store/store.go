package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/cache"
	"github.com/thomaswakin/SystemAdept-sub000/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Store is the narrow adapter the engine uses to read and mutate progress
// records. Mutations are field-level updates, never whole-row overwrites, so
// concurrent disjoint-field writes stay isolated. Every mutation publishes a
// change ping; watchers re-read the full authoritative snapshot.
type Store struct {
	db     *gorm.DB
	ps     cache.PubSub
	logger *zap.Logger
}

// New creates a Store.
func New(db *gorm.DB, ps cache.PubSub, logger *zap.Logger) *Store {
	return &Store{db: db, ps: ps, logger: logger}
}

// DB exposes the underlying handle for auth and admin handlers.
func (s *Store) DB() *gorm.DB { return s.db }

func progressChannel(userID int64) string {
	return fmt.Sprintf("store:progress:%d", userID)
}

func assignmentChannel(userID int64) string {
	return fmt.Sprintf("store:assignments:%d", userID)
}

func profileChannel(userID int64) string {
	return fmt.Sprintf("store:profile:%d", userID)
}

// ProgressChannel exposes a user's progress ping channel for subscribers
// outside the watch helpers, like the SSE layer.
func ProgressChannel(userID int64) string { return progressChannel(userID) }

// AssignmentChannel exposes a user's assignment ping channel.
func AssignmentChannel(userID int64) string { return assignmentChannel(userID) }

func (s *Store) publish(channel string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.ps.Publish(ctx, channel, "changed"); err != nil {
		s.logger.Warn("store publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

// ---- reads ----

// Assignment reads one assignment by ID.
func (s *Store) Assignment(ctx context.Context, id string) (*model.ActiveSystemAssignment, error) {
	var a model.ActiveSystemAssignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// AssignmentsByUser reads all assignments owned by the user.
func (s *Store) AssignmentsByUser(ctx context.Context, userID int64) ([]model.ActiveSystemAssignment, error) {
	var out []model.ActiveSystemAssignment
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("assigned_at").
		Find(&out).Error
	return out, err
}

// ActiveAssignments reads every assignment in active status across all
// users. The background sweeper re-fetches through this on every wake.
func (s *Store) ActiveAssignments(ctx context.Context) ([]model.ActiveSystemAssignment, error) {
	var out []model.ActiveSystemAssignment
	err := s.db.WithContext(ctx).
		Where("status = ?", model.AssignmentActive).
		Order("assigned_at").
		Find(&out).Error
	return out, err
}

// Progress reads one quest instance by ID.
func (s *Store) Progress(ctx context.Context, id string) (*model.QuestProgress, error) {
	var p model.QuestProgress
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ProgressByAssignment reads every instance under one assignment.
func (s *Store) ProgressByAssignment(ctx context.Context, assignmentID string) ([]model.QuestProgress, error) {
	var out []model.QuestProgress
	err := s.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("created_at").
		Find(&out).Error
	return out, err
}

// ProgressByUser reads every instance owned by the user across assignments.
func (s *Store) ProgressByUser(ctx context.Context, userID int64) ([]model.QuestProgress, error) {
	var out []model.QuestProgress
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&out).Error
	return out, err
}

// Profile reads the user profile, creating a default row on first access.
func (s *Store) Profile(ctx context.Context, userID int64) (*model.UserProfile, error) {
	var p model.UserProfile
	err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = model.UserProfile{UserID: userID, RestStartHour: 22, RestEndHour: 6}
		if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
			return nil, err
		}
		return &p, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ---- writes ----

// CreateAssignment inserts a new assignment and pings watchers.
func (s *Store) CreateAssignment(ctx context.Context, a *model.ActiveSystemAssignment) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return err
	}
	s.publish(assignmentChannel(a.UserID))
	return nil
}

// CreateProgress inserts new quest instances and pings watchers.
func (s *Store) CreateProgress(ctx context.Context, instances ...*model.QuestProgress) error {
	if len(instances) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(instances).Error; err != nil {
		return err
	}
	s.publish(progressChannel(instances[0].UserID))
	return nil
}

// UpdateAssignmentFields applies a partial field update to one assignment.
func (s *Store) UpdateAssignmentFields(ctx context.Context, id string, userID int64, fields map[string]interface{}) error {
	err := s.db.WithContext(ctx).
		Model(&model.ActiveSystemAssignment{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return err
	}
	s.publish(assignmentChannel(userID))
	return nil
}

// UpdateProgressFields applies a partial field update to one instance.
func (s *Store) UpdateProgressFields(ctx context.Context, id string, userID int64, fields map[string]interface{}) error {
	err := s.db.WithContext(ctx).
		Model(&model.QuestProgress{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return err
	}
	s.publish(progressChannel(userID))
	return nil
}

// UpdateProgressFieldsIf applies a partial field update only while the
// instance status is one of fromStatuses. Returns false when the guard did
// not match (a concurrent writer got there first).
func (s *Store) UpdateProgressFieldsIf(ctx context.Context, id string, userID int64, fromStatuses []string, fields map[string]interface{}) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.QuestProgress{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.publish(progressChannel(userID))
	return true, nil
}

// IncrementAura atomically adds delta to the user's aura balance.
func (s *Store) IncrementAura(ctx context.Context, userID int64, delta float64) error {
	if _, err := s.Profile(ctx, userID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Model(&model.UserProfile{}).
		Where("user_id = ?", userID).
		Update("aura", gorm.Expr("aura + ?", delta)).Error
	if err != nil {
		return err
	}
	s.publish(profileChannel(userID))
	return nil
}

// CompleteWithReward sets the instance completed and grants aura as one
// all-or-nothing unit. Returns false without granting when the status guard
// did not match.
func (s *Store) CompleteWithReward(ctx context.Context, id string, userID int64, fromStatuses []string, completedAt time.Time, aura float64) (bool, error) {
	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.QuestProgress{}).
			Where("id = ? AND status IN ?", id, fromStatuses).
			Updates(map[string]interface{}{
				"status":       model.ProgressCompleted,
				"completed_at": completedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // guard miss, nothing to grant
		}
		// The profile row is created lazily; make sure it exists inside
		// the transaction so the grant cannot silently update zero rows.
		if err := tx.Where(model.UserProfile{UserID: userID}).
			Attrs(model.UserProfile{RestStartHour: 22, RestEndHour: 6}).
			FirstOrCreate(&model.UserProfile{}).Error; err != nil {
			return err
		}
		grant := tx.Model(&model.UserProfile{}).
			Where("user_id = ?", userID).
			Update("aura", gorm.Expr("aura + ?", aura))
		if grant.Error != nil {
			return grant.Error
		}
		if grant.RowsAffected == 0 {
			return fmt.Errorf("complete %s: aura grant matched no profile row", id)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.publish(progressChannel(userID))
		s.publish(profileChannel(userID))
	}
	return applied, nil
}

// UpdateProfileRest writes the rest-cycle fields and pings profile watchers.
func (s *Store) UpdateProfileRest(ctx context.Context, userID int64, startHour, startMinute, endHour, endMinute int) error {
	if _, err := s.Profile(ctx, userID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Model(&model.UserProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"rest_start_hour":   startHour,
			"rest_start_minute": startMinute,
			"rest_end_hour":     endHour,
			"rest_end_minute":   endMinute,
		}).Error
	if err != nil {
		return err
	}
	s.publish(profileChannel(userID))
	return nil
}
