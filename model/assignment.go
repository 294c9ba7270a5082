package model

import "time"

// AssignmentStatus is the lifecycle state of a system assignment.
type AssignmentStatus = string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentPaused    AssignmentStatus = "paused"
	AssignmentStopped   AssignmentStatus = "stopped"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentRevoked   AssignmentStatus = "revoked"
)

// ActiveSystemAssignment is one user's subscription to a quest system.
// Stop is terminal but the row is retained for history, never hard-deleted.
type ActiveSystemAssignment struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	UserID         int64      `gorm:"index:idx_assign_user;not null" json:"user_id"`
	SystemID       string     `gorm:"size:64;not null" json:"system_id"`
	Name           string     `gorm:"size:128" json:"name"` // display-name snapshot at assignment time
	UserSelected   bool       `gorm:"default:true" json:"user_selected"`
	Status         string     `gorm:"size:16;default:active;index:idx_assign_status" json:"status"`
	CurrentQuestID *string    `gorm:"size:36" json:"current_quest_id"`
	AssignedAt     time.Time  `gorm:"autoCreateTime" json:"assigned_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}
