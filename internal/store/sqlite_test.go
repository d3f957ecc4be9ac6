package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/store"
	"github.com/nhle/taskpulse/internal/testutil"
)

func TestCreateAndListNotifications(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateNotification(ctx, model.Notification{
		TaskID:    "1",
		Kind:      model.NotifyTaskAssigned,
		Message:   "first",
		CreatedAt: base,
	}))
	require.NoError(t, s.CreateNotification(ctx, model.Notification{
		TaskID:    "2",
		Kind:      model.NotifyComment,
		Message:   "second",
		CreatedAt: base.Add(time.Minute),
	}))

	all, err := s.GetNotifications(ctx, store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Message, "newest first")
	assert.Equal(t, model.ID("2"), all[0].TaskID)
	assert.Equal(t, model.NotifyComment, all[0].Kind)
	assert.NotEmpty(t, all[0].ID, "id is generated")

	taskID := model.ID("1")
	forTask, err := s.GetNotifications(ctx, store.NotificationFilter{TaskID: &taskID})
	require.NoError(t, err)
	require.Len(t, forTask, 1)
	assert.Equal(t, "first", forTask[0].Message)
}

func TestMarkReadAndCount(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateNotification(ctx, model.Notification{
			TaskID:  "7",
			Kind:    model.NotifyComment,
			Message: "ping",
		}))
	}

	n, err := s.CountUnread(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	unread, err := s.GetUnreadNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 3)

	require.NoError(t, s.MarkNotificationRead(ctx, unread[0].ID))
	n, err = s.CountUnread(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.MarkTaskNotificationsRead(ctx, "7"))
	n, err = s.CountUnread(ctx, "7")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPruneNotifications(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateNotification(ctx, model.Notification{
			TaskID:    "1",
			Kind:      model.NotifyTaskUpdated,
			Message:   "update",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	removed, err := s.PruneNotifications(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	left, err := s.GetNotifications(ctx, store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.True(t, left[0].CreatedAt.After(left[1].CreatedAt))
}
