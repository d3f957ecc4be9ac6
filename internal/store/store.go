package store

import (
	"context"

	"github.com/nhle/taskpulse/internal/model"
)

// NotificationFilter controls which journal entries are returned.
type NotificationFilter struct {
	TaskID     *model.ID
	UnreadOnly bool
	Limit      int
}

// Journal is the local record of activity the user has not necessarily
// seen yet: newly assigned tasks, comments addressed to them, remote
// edits and deletions.
type Journal interface {
	CreateNotification(ctx context.Context, n model.Notification) error
	GetNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error)
	GetUnreadNotifications(ctx context.Context) ([]model.Notification, error)
	CountUnread(ctx context.Context, taskID model.ID) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkTaskNotificationsRead(ctx context.Context, taskID model.ID) error
	PruneNotifications(ctx context.Context, keep int) (int64, error)
}
