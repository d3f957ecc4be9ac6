package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/event"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/realtime"
)

var (
	// ErrCommentingClosed is returned when the viewer may not comment on
	// the task in its current status.
	ErrCommentingClosed = errors.New("commenting is closed for this task")

	// ErrEditWindowClosed is returned when a comment may no longer be
	// edited or deleted by the viewer.
	ErrEditWindowClosed = errors.New("comment can no longer be changed")

	// ErrUnknownTask is returned for actions on a task that is not cached.
	ErrUnknownTask = errors.New("unknown task")
)

// ChangeStatus sets the status of a task optimistically and confirms it
// with the server. On failure the previous status is restored unless a
// newer change has already replaced the optimistic one.
func (e *Engine) ChangeStatus(ctx context.Context, id model.ID, status model.TaskStatus) error {
	var prev model.TaskStatus
	var known bool
	if err := e.do(func() {
		var t model.Task
		t, known = e.tasks.Get(id)
		if !known {
			return
		}
		prev = t.Status
		e.tasks.ApplyEvent(model.StatusPatch(id, status))
	}); err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("changing status of task %s: %w", id, ErrUnknownTask)
	}

	saved, err := e.api.UpdateTaskStatus(ctx, id, status)
	if err != nil {
		_ = e.do(func() {
			if cur, ok := e.tasks.Get(id); ok && cur.Status == status {
				e.tasks.ApplyEvent(model.StatusPatch(id, prev))
			}
		})
		e.fail(err)
		return fmt.Errorf("changing status of task %s: %w", id, err)
	}

	if saved != nil && saved.ID != "" {
		_ = e.do(func() { e.tasks.ApplyEvent(model.PatchOf(*saved)) })
	}
	return nil
}

// CreateTask creates a task and broadcasts it to the other clients.
func (e *Engine) CreateTask(ctx context.Context, in api.TaskInput) (*model.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.New("title is required")
	}
	if in.CreatedByID == "" {
		in.CreatedByID = e.session.Email()
	}

	saved, err := e.api.CreateTask(ctx, in)
	if err != nil {
		e.fail(err)
		return nil, fmt.Errorf("creating task: %w", err)
	}

	if saved.ID != "" {
		_ = e.do(func() { e.tasks.ApplyEvent(model.PatchOf(*saved)) })
	}
	e.publish(event.DestTask, saved)
	return saved, nil
}

// UpdateTask saves the editable fields of a task and broadcasts the
// result.
func (e *Engine) UpdateTask(ctx context.Context, id model.ID, in api.TaskInput) (*model.Task, error) {
	saved, err := e.api.UpdateTask(ctx, id, in)
	if err != nil {
		e.fail(err)
		return nil, fmt.Errorf("updating task %s: %w", id, err)
	}

	if saved.ID == "" {
		saved.ID = id
	}
	_ = e.do(func() { e.tasks.ApplyEvent(model.PatchOf(*saved)) })
	e.publish(event.DestTaskUpdate, saved)
	return saved, nil
}

// DeleteTask deletes a task on the server, then locally.
func (e *Engine) DeleteTask(ctx context.Context, id model.ID) error {
	if err := e.api.DeleteTask(ctx, id); err != nil {
		e.fail(err)
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return e.do(func() { e.tasks.ApplyEvent(model.Tombstone(id)) })
}

// AddComment posts a comment on a task, addressed to the other party of
// the task, and broadcasts it.
func (e *Engine) AddComment(ctx context.Context, taskID model.ID, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("comment cannot be empty")
	}

	task, ok := e.tasks.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("commenting on task %s: %w", taskID, ErrUnknownTask)
	}
	if !derive.CommentingAllowed(e.session.Role(), task.Status) {
		return nil, ErrCommentingClosed
	}

	viewer := e.session.Email()
	saved, err := e.api.AddComment(ctx, taskID, model.NewComment{
		AuthorEmail:    viewer,
		RecipientEmail: derive.Recipient(task, viewer),
		Content:        content,
		IsRead:         true,
	})
	if err != nil {
		e.fail(err)
		return nil, fmt.Errorf("commenting on task %s: %w", taskID, err)
	}

	_ = e.do(func() { e.threads.AppendEvent(*saved) })
	e.publish(event.DestComment, saved)
	return saved, nil
}

// EditComment replaces the content of one of the viewer's recent
// comments.
func (e *Engine) EditComment(ctx context.Context, commentID model.ID, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("comment cannot be empty")
	}
	if !e.editable(commentID) {
		return nil, ErrEditWindowClosed
	}

	saved, err := e.api.EditComment(ctx, commentID, content)
	if err != nil {
		e.fail(err)
		return nil, fmt.Errorf("editing comment %s: %w", commentID, err)
	}

	_ = e.do(func() {
		c, _ := e.threads.Get(commentID)
		taskID := c.TaskID
		if saved.ID.IsZero() {
			c.Content = content
		} else {
			c = *saved
		}
		if c.TaskID.IsZero() {
			c.TaskID = taskID
		}
		e.threads.AppendEvent(c)
	})
	return saved, nil
}

// DeleteComment removes one of the viewer's recent comments.
func (e *Engine) DeleteComment(ctx context.Context, commentID model.ID) error {
	if !e.editable(commentID) {
		return ErrEditWindowClosed
	}
	if err := e.api.DeleteComment(ctx, commentID); err != nil {
		e.fail(err)
		return fmt.Errorf("deleting comment %s: %w", commentID, err)
	}
	return e.do(func() { e.threads.Remove(commentID) })
}

func (e *Engine) editable(commentID model.ID) bool {
	c, ok := e.threads.Get(commentID)
	if !ok {
		return false
	}
	task, _ := e.tasks.Get(c.TaskID)
	return e.threads.Editable(commentID, e.session.Role(), task.Status, e.now())
}

// Focus makes taskID the task the viewer is looking at: its thread is
// loaded and marked read, its unread topic is subscribed and, for the
// assignee, its "new" flag is cleared.
func (e *Engine) Focus(ctx context.Context, taskID model.ID) error {
	viewer := e.session.Email()
	var sub *realtime.Subscription
	if e.channel != nil && viewer != "" {
		sub = e.channel.Subscribe(event.UnreadTopic(viewer, taskID), normalizer(e.logger, e.emit))
	}

	e.mu.Lock()
	prev := e.focusSub
	e.focus = taskID
	e.focusSub = sub
	e.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}

	task, err := e.api.GetTask(ctx, taskID)
	if err != nil {
		if api.IsNotFound(err) {
			_ = e.do(func() { e.tasks.ApplyEvent(model.Tombstone(taskID)) })
		}
		e.fail(err)
		return fmt.Errorf("opening task %s: %w", taskID, err)
	}
	if task.ID == "" {
		task.ID = taskID
	}

	comments, err := e.api.ListComments(ctx, taskID)
	if err != nil {
		e.fail(err)
		return fmt.Errorf("loading comments of task %s: %w", taskID, err)
	}

	if err := e.do(func() {
		e.tasks.ApplyEvent(model.PatchOf(*task))
		e.threads.LoadHistory(taskID, comments)
	}); err != nil {
		return err
	}

	if err := e.api.MarkThreadRead(ctx, taskID, viewer); err != nil {
		e.logger.Printf("marking thread %s read: %v", taskID, err)
	} else {
		_ = e.do(func() { e.threads.MarkThreadReadLocally(taskID) })
	}

	if strings.EqualFold(task.AssigneeID, viewer) && e.isNew(ctx, *task) {
		if err := e.api.ClearTaskNew(ctx, taskID); err != nil {
			e.logger.Printf("clearing new flag of task %s: %v", taskID, err)
		} else {
			isNew := false
			_ = e.do(func() { e.tasks.ApplyEvent(model.TaskPatch{ID: taskID, IsNew: &isNew}) })
		}
	}

	if e.journal != nil {
		if err := e.journal.MarkTaskNotificationsRead(ctx, taskID); err != nil {
			e.logger.Printf("journal: %v", err)
		}
	}
	return nil
}

// isNew asks the server whether the assignee has opened t yet, falling
// back to the flag on the fetched record.
func (e *Engine) isNew(ctx context.Context, t model.Task) bool {
	isNew, err := e.api.IsTaskNew(ctx, t.ID)
	if err != nil {
		e.logger.Printf("checking new flag of task %s: %v", t.ID, err)
		return t.IsNew
	}
	return isNew
}

// Unfocus drops the focused task and its unread subscription.
func (e *Engine) Unfocus() {
	e.mu.Lock()
	sub := e.focusSub
	e.focusSub = nil
	e.focus = ""
	e.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// Focused returns the focused task id, if any.
func (e *Engine) Focused() model.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focus
}

// publish broadcasts v if a realtime channel is configured. Publishing
// is best effort; the channel queues while disconnected.
func (e *Engine) publish(dest string, v any) {
	if e.channel == nil {
		return
	}
	if err := e.channel.Publish(dest, v); err != nil {
		e.logger.Printf("publish %s: %v", dest, err)
	}
}

func sameEmail(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
