package model

import "time"

// NotificationKind classifies journal entries.
type NotificationKind string

const (
	NotifyTaskAssigned NotificationKind = "task_assigned"
	NotifyTaskUpdated  NotificationKind = "task_updated"
	NotifyTaskDeleted  NotificationKind = "task_deleted"
	NotifyComment      NotificationKind = "comment"
)

// Notification is an alert surfaced to the user about activity on a task
// they are involved in.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id" db:"id"`

	// TaskID links this notification to the originating task.
	TaskID ID `json:"task_id" db:"task_id"`

	// Kind is the activity that produced the notification.
	Kind NotificationKind `json:"kind" db:"kind"`

	// Message is the human-readable notification text.
	Message string `json:"message" db:"message"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read" db:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
