// Package derive computes time-sensitive display state from store
// contents: urgency buckets, comment permissions, relative ages and
// per-viewer task visibility. Everything here is a pure function of its
// inputs except Engine, which re-runs them on change and on a tick.
package derive

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nhle/taskpulse/internal/model"
)

// Urgency buckets a task's due date relative to today.
type Urgency string

// Urgency values.
const (
	UrgencyNone        Urgency = "NONE"
	UrgencyOverdue     Urgency = "OVERDUE"
	UrgencyDueToday    Urgency = "DUE_TODAY"
	UrgencyDueTomorrow Urgency = "DUE_TOMORROW"
	UrgencyDueIn2Days  Urgency = "DUE_IN_2_DAYS"
)

// Label is the badge text shown for u.
func (u Urgency) Label() string {
	switch u {
	case UrgencyOverdue:
		return "Overdue"
	case UrgencyDueToday:
		return "Due today"
	case UrgencyDueTomorrow:
		return "Due tomorrow"
	case UrgencyDueIn2Days:
		return "Due in 2 days"
	default:
		return ""
	}
}

// ComputeUrgency classifies due against the calendar day of now (in now's
// location). Closed tasks and tasks without a due date are never urgent.
func ComputeUrgency(due model.Date, status model.TaskStatus, now time.Time) Urgency {
	if status.Closed() || due.IsZero() {
		return UrgencyNone
	}

	switch days := due.DaysSince(model.NewDate(now)); {
	case days < 0:
		return UrgencyOverdue
	case days == 0:
		return UrgencyDueToday
	case days == 1:
		return UrgencyDueTomorrow
	case days == 2:
		return UrgencyDueIn2Days
	default:
		return UrgencyNone
	}
}

// EditWindow is how long after posting a comment may still be changed.
const EditWindow = 5 * time.Minute

// CommentingAllowed reports whether a viewer with role may comment on a
// task in status. Only non-admins on cancelled tasks are locked out.
func CommentingAllowed(role model.Role, status model.TaskStatus) bool {
	return !(role != model.RoleAdmin && status == model.StatusCancelled)
}

// CommentEditable reports whether viewer may edit or delete c: the viewer
// wrote it, it is at most EditWindow old and commenting is allowed.
func CommentEditable(c model.Comment, viewer string, role model.Role, status model.TaskStatus, now time.Time) bool {
	if viewer == "" || !strings.EqualFold(c.AuthorEmail, viewer) {
		return false
	}
	if now.Sub(c.Created()) > EditWindow {
		return false
	}
	return CommentingAllowed(role, status)
}

// CommentAge renders how long ago createdAt was, e.g. "3 minutes ago".
func CommentAge(createdAt, now time.Time) string {
	if createdAt.IsZero() {
		return ""
	}
	if now.Sub(createdAt) < time.Minute {
		return "just now"
	}
	return humanize.RelTime(createdAt, now, "ago", "from now")
}

// VisibleTo reports whether the viewer created or is assigned t.
func VisibleTo(t model.Task, email string) bool {
	if email == "" {
		return false
	}
	return strings.EqualFold(t.CreatedByID, email) || strings.EqualFold(t.AssigneeID, email)
}

// Recipient returns who a comment by viewer on t is addressed to: the
// assignee for the task's creator, the creator for everyone else.
func Recipient(t model.Task, viewer string) string {
	if strings.EqualFold(t.CreatedByID, viewer) {
		return t.AssigneeID
	}
	return t.CreatedByID
}
