package notify

import (
	"context"
	"fmt"
	"time"
)

// Notification is a scheduled user-facing notification. Payload carries the
// routing hints the client uses when the user taps it.
type Notification struct {
	ID      string            `json:"id"`
	UserID  int64             `json:"user_id"`
	FireAt  time.Time         `json:"fire_at"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Event is what a host emits when a notification fires.
type Event struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Payload map[string]string `json:"payload,omitempty"`
	FiredAt time.Time         `json:"fired_at"`
}

// Host is the notification delivery backend. Scheduling under an existing ID
// replaces the pending notification.
type Host interface {
	ScheduleAt(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, ids ...string) error
	ListPending(ctx context.Context) ([]string, error)
}

// EventChannel is the pub/sub channel fired notifications for a user are
// published on.
func EventChannel(userID int64) string {
	return fmt.Sprintf("notify:events:%d", userID)
}
