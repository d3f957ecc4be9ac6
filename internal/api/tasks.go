package api

import (
	"context"
	"fmt"

	"github.com/nhle/taskpulse/internal/model"
)

// TaskInput is the body for creating or updating a task.
type TaskInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Priority    model.Priority   `json:"priority"`
	Status      model.TaskStatus `json:"taskStatus,omitempty"`
	DueDate     model.Date       `json:"dueDate"`
	CreatedByID string           `json:"createdById"`
	AssigneeID  string           `json:"assigneeId"`
}

// ListTasks fetches the full task snapshot.
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := c.get(ctx, "/task", &tasks); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, id model.ID) (*model.Task, error) {
	var task model.Task
	if err := c.get(ctx, "/task/"+id.String(), &task); err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return &task, nil
}

// CreateTask creates a task and returns the saved record.
func (c *Client) CreateTask(ctx context.Context, in TaskInput) (*model.Task, error) {
	var task model.Task
	if err := c.post(ctx, "/task/create-task", in, &task); err != nil {
		return nil, fmt.Errorf("creating task %q: %w", in.Title, err)
	}
	return &task, nil
}

// UpdateTask replaces the editable fields of id and returns the saved
// record.
func (c *Client) UpdateTask(ctx context.Context, id model.ID, in TaskInput) (*model.Task, error) {
	var task model.Task
	if err := c.put(ctx, "/task/update-task/"+id.String(), in, &task); err != nil {
		return nil, fmt.Errorf("updating task %s: %w", id, err)
	}
	return &task, nil
}

// DeleteTask removes id.
func (c *Client) DeleteTask(ctx context.Context, id model.ID) error {
	if err := c.delete(ctx, "/task/"+id.String()); err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return nil
}

type statusRequest struct {
	TaskStatus model.TaskStatus `json:"taskStatus"`
}

// UpdateTaskStatus moves id to status and returns the saved record.
func (c *Client) UpdateTaskStatus(ctx context.Context, id model.ID, status model.TaskStatus) (*model.Task, error) {
	var task model.Task
	path := "/task/" + id.String() + "/status"
	if err := c.put(ctx, path, statusRequest{TaskStatus: status}, &task); err != nil {
		return nil, fmt.Errorf("updating status of task %s: %w", id, err)
	}
	return &task, nil
}

// IsTaskNew reports whether the assignee has not opened id yet.
func (c *Client) IsTaskNew(ctx context.Context, id model.ID) (bool, error) {
	var isNew bool
	if err := c.get(ctx, "/task/"+id.String()+"/is-new", &isNew); err != nil {
		return false, fmt.Errorf("checking new state of task %s: %w", id, err)
	}
	return isNew, nil
}

// ClearTaskNew drops the "new" badge of id.
func (c *Client) ClearTaskNew(ctx context.Context, id model.ID) error {
	if err := c.put(ctx, "/task/task-is-new-state/"+id.String(), nil, nil); err != nil {
		return fmt.Errorf("clearing new state of task %s: %w", id, err)
	}
	return nil
}
