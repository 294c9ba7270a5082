package model

import "time"

// ProgressStatus is the lifecycle state of one quest instance.
type ProgressStatus = string

const (
	ProgressLocked     ProgressStatus = "locked"
	ProgressAvailable  ProgressStatus = "available"
	ProgressInProgress ProgressStatus = "inProgress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
)

// QuestProgress tracks one user's attempt at one quest. A restart creates a
// fresh row; FailedCount accumulates across restarts of the same quest slot
// and is never cleared by any other path.
type QuestProgress struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	AssignmentID   string     `gorm:"index:idx_progress_assign;size:36;not null" json:"assignment_id"`
	UserID         int64      `gorm:"index:idx_progress_user;not null" json:"user_id"`
	QuestID        string     `gorm:"size:64;not null" json:"quest_id"`
	Status         string     `gorm:"size:16;default:locked;index:idx_progress_status" json:"status"`
	AvailableAt    *time.Time `json:"available_at"`
	StartTime      *time.Time `json:"start_time"`
	ExpirationTime *time.Time `json:"expiration_time"`
	CompletedAt    *time.Time `json:"completed_at"`
	FailedAt       *time.Time `json:"failed_at"`
	FailedCount    int        `gorm:"default:0" json:"failed_count"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Terminal reports whether the instance is in a terminal state.
func (p *QuestProgress) Terminal() bool {
	return p.Status == ProgressCompleted || p.Status == ProgressFailed
}
