package model

import "time"

// UserProfile holds the per-user aggregate state the quest engine mutates:
// the aura balance and the rest-cycle window that times the morning reminder.
type UserProfile struct {
	UserID          int64     `gorm:"primaryKey" json:"user_id"`
	Aura            float64   `gorm:"default:0" json:"aura"`
	RestStartHour   int       `gorm:"default:22" json:"rest_start_hour"`
	RestStartMinute int       `gorm:"default:0" json:"rest_start_minute"`
	RestEndHour     int       `gorm:"default:6" json:"rest_end_hour"`
	RestEndMinute   int       `gorm:"default:0" json:"rest_end_minute"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
