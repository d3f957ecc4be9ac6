package model

import (
	"encoding/json"
	"strings"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task status values as the API spells them.
const (
	StatusPending   TaskStatus = "PENDING"
	StatusOngoing   TaskStatus = "ONGOING"
	StatusCompleted TaskStatus = "COMPLETED"
	StatusCancelled TaskStatus = "CANCELLED"
)

// statusInProgress is the historical spelling of ONGOING still present
// in older rows and clients.
const statusInProgress = "INPROGRESS"

// Statuses lists the lifecycle states in display order.
var Statuses = []TaskStatus{
	StatusPending,
	StatusOngoing,
	StatusCompleted,
	StatusCancelled,
}

// ParseTaskStatus normalizes a status string. The legacy alias maps to
// ONGOING; unknown values are kept so that a newer server does not make
// the client drop data.
func ParseTaskStatus(s string) TaskStatus {
	up := strings.ToUpper(strings.TrimSpace(s))
	if up == statusInProgress || up == "IN_PROGRESS" {
		return StatusOngoing
	}
	return TaskStatus(up)
}

// Valid reports whether s is one of the known lifecycle states.
func (s TaskStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Closed reports whether the task has left the active part of its
// lifecycle.
func (s TaskStatus) Closed() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the status after s in display order, wrapping around.
func (s TaskStatus) Next() TaskStatus {
	for i, known := range Statuses {
		if s == known {
			return Statuses[(i+1)%len(Statuses)]
		}
	}
	return StatusPending
}

// UnmarshalJSON applies ParseTaskStatus.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseTaskStatus(raw)
	return nil
}

// Priority is the task priority as the API spells it.
type Priority string

// Priority values.
const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Task is the client's cached copy of a server task. It is never
// authoritative: it is created when first observed in a snapshot or
// creation event and removed on a deletion event or snapshot omission.
type Task struct {
	ID          ID         `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      TaskStatus `json:"taskStatus"`
	DueDate     Date       `json:"dueDate"`

	// CreatedByID and AssigneeID are user emails.
	CreatedByID string `json:"createdById"`
	AssigneeID  string `json:"assigneeId"`

	// IsNew is set by the server until the assignee opens the task.
	IsNew bool `json:"isNew"`
}

// TaskPatch is the partial task carried by stream events. Only fields
// present in the payload are non-nil.
type TaskPatch struct {
	ID          ID          `json:"id"`
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Priority    *Priority   `json:"priority,omitempty"`
	Status      *TaskStatus `json:"taskStatus,omitempty"`
	DueDate     *Date       `json:"dueDate,omitempty"`
	CreatedByID *string     `json:"createdById,omitempty"`
	AssigneeID  *string     `json:"assigneeId,omitempty"`
	IsNew       *bool       `json:"isNew,omitempty"`

	// Deleted marks a tombstone synthesized from a deletion event.
	Deleted bool `json:"deleted,omitempty"`
}

// Tombstone returns the deletion marker for id.
func Tombstone(id ID) TaskPatch {
	return TaskPatch{ID: id, Deleted: true}
}

// PatchOf returns a patch carrying every field of t.
func PatchOf(t Task) TaskPatch {
	return TaskPatch{
		ID:          t.ID,
		Title:       &t.Title,
		Description: &t.Description,
		Priority:    &t.Priority,
		Status:      &t.Status,
		DueDate:     &t.DueDate,
		CreatedByID: &t.CreatedByID,
		AssigneeID:  &t.AssigneeID,
		IsNew:       &t.IsNew,
	}
}

// StatusPatch returns a patch that only changes the status of id.
func StatusPatch(id ID, status TaskStatus) TaskPatch {
	return TaskPatch{ID: id, Status: &status}
}

// ApplyTo shallow-merges the present fields of p onto t.
func (p TaskPatch) ApplyTo(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.CreatedByID != nil {
		t.CreatedByID = *p.CreatedByID
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.IsNew != nil {
		t.IsNew = *p.IsNew
	}
}

// Task materializes a new record from the patch.
func (p TaskPatch) Task() Task {
	t := Task{ID: p.ID}
	p.ApplyTo(&t)
	return t
}
