package event

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nhle/taskpulse/internal/model"
)

// Broker topics the client subscribes to.
const (
	TopicComments          = "/topic/comments"
	TopicTaskCreated       = "/topic/task-created"
	TopicTaskUpdated       = "/topic/task-updated"
	TopicTaskDeleted       = "/topic/task-deleted"
	TopicTaskStatusUpdated = "/topic/task-status-updated"

	unreadPrefix = "/topic/unread-count/"
)

// Application destinations the client publishes to.
const (
	DestComment    = "/app/comment"
	DestTask       = "/app/task"
	DestTaskUpdate = "/app/task-update"
)

// TaskTopics lists the task topics in subscription order.
var TaskTopics = []string{
	TopicTaskCreated,
	TopicTaskUpdated,
	TopicTaskStatusUpdated,
	TopicTaskDeleted,
}

// UnreadTopic returns the per-viewer unread-count topic of a task.
func UnreadTopic(email string, taskID model.ID) string {
	return unreadPrefix + url.PathEscape(email) + "/" + url.PathEscape(taskID.String())
}

// parseUnreadTopic splits an unread-count topic into its email and task id.
func parseUnreadTopic(topic string) (string, model.ID, error) {
	rest := strings.TrimPrefix(topic, unreadPrefix)
	email, id, ok := strings.Cut(rest, "/")
	if !ok || email == "" || id == "" || strings.Contains(id, "/") {
		return "", "", fmt.Errorf("malformed unread-count topic")
	}
	if e, err := url.PathUnescape(email); err == nil {
		email = e
	}
	if i, err := url.PathUnescape(id); err == nil {
		id = i
	}
	return email, model.ID(id), nil
}
