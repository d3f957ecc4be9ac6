// Package event turns raw broker frames into typed domain events.
//
// Payload shapes differ per topic: comments arrive as flat objects, task
// events wrap a full task in {"payload": ...}, and deletions wrap only the
// id. Normalize hides that so nothing downstream inspects raw JSON.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/taskpulse/internal/model"
)

// Kind tags the variant carried by an Event.
type Kind int

// Event kinds.
const (
	TaskCreated Kind = iota + 1
	TaskUpdated
	TaskStatusUpdated
	TaskDeleted
	CommentCreated
	UnreadCount
)

func (k Kind) String() string {
	switch k {
	case TaskCreated:
		return "task-created"
	case TaskUpdated:
		return "task-updated"
	case TaskStatusUpdated:
		return "task-status-updated"
	case TaskDeleted:
		return "task-deleted"
	case CommentCreated:
		return "comment"
	case UnreadCount:
		return "unread-count"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsTask reports whether the event carries a task patch.
func (k Kind) IsTask() bool {
	return k >= TaskCreated && k <= TaskDeleted
}

// Unread is the server-pushed unread comment count of one viewer on one
// task.
type Unread struct {
	Email  string
	TaskID model.ID
	Count  int
}

// Event is a normalized broker message. Exactly one of Task, Comment or
// Unread is meaningful, selected by Kind.
type Event struct {
	Kind  Kind
	Topic string

	// Task is set for task kinds. TaskDeleted carries a tombstone.
	Task model.TaskPatch

	Comment model.Comment
	Unread  Unread
}

// ParseError is a frame that could not be normalized.
type ParseError struct {
	Topic string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing message on %s: %v", e.Topic, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	errMissingPayload = errors.New("missing payload")
	errMissingID      = errors.New("missing id")
	errUnknownTopic   = errors.New("unknown topic")
)

// envelope is the task event wrapper.
type envelope struct {
	Payload json.RawMessage `json:"payload"`
}

// Normalize classifies a frame by topic and decodes its body.
func Normalize(topic string, body []byte) (Event, error) {
	ev, err := normalize(topic, body)
	if err != nil {
		return Event{}, &ParseError{Topic: topic, Err: err}
	}
	ev.Topic = topic
	return ev, nil
}

func normalize(topic string, body []byte) (Event, error) {
	switch topic {
	case TopicComments:
		return decodeComment(body)
	case TopicTaskCreated:
		return decodeTask(TaskCreated, body)
	case TopicTaskUpdated:
		return decodeTask(TaskUpdated, body)
	case TopicTaskStatusUpdated:
		return decodeTask(TaskStatusUpdated, body)
	case TopicTaskDeleted:
		return decodeDeleted(body)
	}
	if strings.HasPrefix(topic, unreadPrefix) {
		return decodeUnread(topic, body)
	}
	return Event{}, errUnknownTopic
}

func decodeComment(body []byte) (Event, error) {
	var c model.Comment
	if err := json.Unmarshal(body, &c); err != nil {
		return Event{}, err
	}
	if c.ID.IsZero() {
		return Event{}, errMissingID
	}
	if c.TaskID.IsZero() {
		return Event{}, errors.New("missing taskId")
	}
	return Event{Kind: CommentCreated, Comment: c}, nil
}

func payloadOf(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	p := bytes.TrimSpace(env.Payload)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return nil, errMissingPayload
	}
	return p, nil
}

func decodeTask(kind Kind, body []byte) (Event, error) {
	payload, err := payloadOf(body)
	if err != nil {
		return Event{}, err
	}
	var patch model.TaskPatch
	if err := json.Unmarshal(payload, &patch); err != nil {
		return Event{}, err
	}
	if patch.ID.IsZero() {
		return Event{}, errMissingID
	}
	// Only deletion events may carry a tombstone.
	patch.Deleted = false
	return Event{Kind: kind, Task: patch}, nil
}

func decodeDeleted(body []byte) (Event, error) {
	payload, err := payloadOf(body)
	if err != nil {
		return Event{}, err
	}
	var id model.ID
	if err := json.Unmarshal(payload, &id); err != nil {
		// Some servers send the deleted task itself.
		var patch model.TaskPatch
		if objErr := json.Unmarshal(payload, &patch); objErr != nil {
			return Event{}, err
		}
		id = patch.ID
	}
	if id.IsZero() {
		return Event{}, errMissingID
	}
	return Event{Kind: TaskDeleted, Task: model.Tombstone(id)}, nil
}

func decodeUnread(topic string, body []byte) (Event, error) {
	email, taskID, err := parseUnreadTopic(topic)
	if err != nil {
		return Event{}, err
	}

	count, err := decodeCount(body)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Kind:   UnreadCount,
		Unread: Unread{Email: email, TaskID: taskID, Count: count},
	}, nil
}

// decodeCount accepts a bare number or {"payload": n} / {"count": n}.
func decodeCount(body []byte) (int, error) {
	var n int
	if err := json.Unmarshal(body, &n); err == nil {
		return n, nil
	}
	var wrapped struct {
		Payload *int `json:"payload"`
		Count   *int `json:"count"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return 0, err
	}
	switch {
	case wrapped.Payload != nil:
		return *wrapped.Payload, nil
	case wrapped.Count != nil:
		return *wrapped.Count, nil
	}
	return 0, errMissingPayload
}
