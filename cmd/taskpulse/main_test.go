package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/event"
	"github.com/nhle/taskpulse/internal/model"
)

func TestDescribeEvents(t *testing.T) {
	title := "Ship release"
	status := model.StatusOngoing

	assert.Equal(t, "task-status-updated  #7 Ship release [ONGOING]", describe(event.Event{
		Kind: event.TaskStatusUpdated,
		Task: model.TaskPatch{ID: "7", Title: &title, Status: &status},
	}))
	assert.Equal(t, "task-deleted         #7", describe(event.Event{
		Kind: event.TaskDeleted,
		Task: model.Tombstone("7"),
	}))
	assert.Equal(t, "comment              #7 a@x.io -> b@x.io: hi", describe(event.Event{
		Kind:    event.CommentCreated,
		Comment: model.Comment{TaskID: "7", AuthorEmail: "a@x.io", RecipientEmail: "b@x.io", Content: "hi"},
	}))
	assert.Equal(t, "unread-count         #7 3 unread", describe(event.Event{
		Kind:   event.UnreadCount,
		Unread: event.Unread{TaskID: "7", Count: 3},
	}))
}

func TestPrintEventsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan event.Event, 1)
	events <- event.Event{Kind: event.TaskDeleted, Task: model.Tombstone("9")}

	var out strings.Builder
	done := make(chan error)
	go func() { done <- printEvents(ctx, &out, events) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Contains(t, out.String(), "task-deleted")
}

func TestRenderBoard(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: "1", Title: "Late one", Status: model.StatusPending, Priority: model.PriorityHigh, DueDate: model.NewDate(now.AddDate(0, 0, -1)), AssigneeID: "me@x.io"},
		{ID: "2", Title: "Not mine", Status: model.StatusPending, AssigneeID: "other@x.io"},
	}
	b := derive.Build(tasks, nil, derive.Viewer{Email: "me@x.io"}, "", now)

	out := renderBoard(b, false)
	assert.Contains(t, out, "Late one")
	assert.Contains(t, out, "Overdue")
	assert.NotContains(t, out, "Not mine")
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, validateEmail("a@b.io"))
	assert.Error(t, validateEmail("@b.io"))
	assert.Error(t, validateEmail("ab.io"))
	assert.Error(t, validateEmail("ab@"))
}
