package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records quest lifecycle transitions and user commands.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	UserID     *int64         `gorm:"index:idx_audit_user" json:"user_id"`
	InstanceID string         `gorm:"index:idx_audit_instance;size:36" json:"instance_id"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	FromStatus string         `gorm:"size:16" json:"from_status"`
	ToStatus   string         `gorm:"size:16" json:"to_status"`
	Detail     datatypes.JSON `json:"detail"`
	Error      string         `gorm:"type:text" json:"error"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
