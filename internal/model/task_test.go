package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskDecodesServerPayload(t *testing.T) {
	body := `{
		"id": 42,
		"title": "Ship release",
		"description": "cut the tag",
		"priority": "High",
		"taskStatus": "INPROGRESS",
		"dueDate": "2025-06-30T00:00:00",
		"createdById": "boss@example.com",
		"assigneeId": "dev@example.com",
		"isNew": true
	}`

	var task Task
	require.NoError(t, json.Unmarshal([]byte(body), &task))

	assert.Equal(t, ID("42"), task.ID)
	assert.Equal(t, StatusOngoing, task.Status, "legacy alias maps to ONGOING")
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.Equal(t, Date{Year: 2025, Month: time.June, Day: 30}, task.DueDate)
	assert.True(t, task.IsNew)
}

func TestTaskStatusKeepsUnknownValues(t *testing.T) {
	assert.Equal(t, TaskStatus("DONE"), ParseTaskStatus("done"))
	assert.False(t, TaskStatus("DONE").Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.Equal(t, StatusOngoing, ParseTaskStatus(" inprogress "))
}

func TestTaskStatusNextWraps(t *testing.T) {
	assert.Equal(t, StatusOngoing, StatusPending.Next())
	assert.Equal(t, StatusPending, StatusCancelled.Next())
	assert.Equal(t, StatusPending, TaskStatus("DONE").Next())
}

func TestPatchMergesOnlyPresentFields(t *testing.T) {
	task := Task{ID: "1", Title: "old", Description: "keep me", Status: StatusPending}

	var patch TaskPatch
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"title":"new"}`), &patch))
	patch.ApplyTo(&task)

	assert.Equal(t, "new", task.Title)
	assert.Equal(t, "keep me", task.Description)
	assert.Equal(t, StatusPending, task.Status)
}

func TestPatchOfRoundTrip(t *testing.T) {
	task := Task{
		ID:          "9",
		Title:       "t",
		Priority:    PriorityLow,
		Status:      StatusCompleted,
		DueDate:     Date{Year: 2024, Month: time.January, Day: 2},
		CreatedByID: "a@example.com",
		AssigneeID:  "b@example.com",
	}
	assert.Equal(t, task, PatchOf(task).Task())
}

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	var ids []ID
	require.NoError(t, json.Unmarshal([]byte(`[1, "abc", null, 12345678901]`), &ids))
	assert.Equal(t, []ID{"1", "abc", "", "12345678901"}, ids)

	out, err := json.Marshal([]ID{"5", "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `[5, "x"]`, string(out))
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2024, Month: time.February, Day: 28}
	assert.Equal(t, Date{Year: 2024, Month: time.March, Day: 1}, d.AddDays(2))
	assert.Equal(t, 2, d.AddDays(2).DaysSince(d))
	assert.Equal(t, -1, d.DaysSince(d.AddDays(1)))
	assert.Equal(t, "2024-02-28", d.String())
	assert.Equal(t, "", Date{}.String())
}

func TestCommentTimestampFormats(t *testing.T) {
	var c Comment
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 3, "taskId": 1, "content": "hi",
		"createdAt": "2025-01-05T10:20:30.123Z"
	}`), &c))
	assert.Equal(t, ID("1"), c.TaskID)
	assert.Equal(t, 2025, c.Created().Year())
	assert.Equal(t, 123*time.Millisecond, time.Duration(c.Created().Nanosecond()))

	require.NoError(t, json.Unmarshal([]byte(`{"id": 4, "createdAt": "2025-01-05T10:20:30"}`), &c))
	assert.Equal(t, 30, c.Created().Second())
}
