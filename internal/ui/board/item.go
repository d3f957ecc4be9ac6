package board

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/theme"
)

// RowItem wraps a derived row so it can be used in a bubbles/list.
type RowItem struct {
	Row derive.Row
}

// FilterValue returns the string used for fuzzy filtering.
func (i RowItem) FilterValue() string { return i.Row.Task.Title }

// Title returns the task title for the list.
func (i RowItem) Title() string { return i.Row.Task.Title }

// Description returns a short summary line for the list.
func (i RowItem) Description() string {
	t := i.Row.Task
	parts := []string{string(t.Status), string(t.Priority)}
	if !t.DueDate.IsZero() {
		parts = append(parts, "due "+t.DueDate.String())
	}
	return strings.Join(parts, " | ")
}

// RowDelegate implements list.ItemDelegate for rendering board rows.
type RowDelegate struct{}

// Height returns the number of lines each item takes.
func (d RowDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d RowDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d RowDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single board line.
func (d RowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ri, ok := item.(RowItem)
	if !ok {
		return
	}
	fmt.Fprint(w, RenderRow(ri.Row, index == m.Index()))
}

// RenderRow renders one row: status, priority, title, then the urgency,
// unread and NEW badges.
func RenderRow(r derive.Row, selected bool) string {
	t := r.Task

	statusBadge := theme.StatusStyle(t.Status).Render(statusLabel(t.Status))
	priBadge := theme.PriorityStyle(t.Priority).Render(priorityLabel(t.Priority))

	var badges []string
	if label := r.Urgency.Label(); label != "" {
		badges = append(badges, theme.UrgencyStyle(r.Urgency).Render(label))
	}
	if r.Unread > 0 {
		badges = append(badges, theme.UnreadStyle.Render(fmt.Sprintf("✉ %d", r.Unread)))
	}
	if r.IsNew {
		badges = append(badges, theme.NewBadgeStyle.Render("NEW"))
	}

	line := fmt.Sprintf("%s %s %s", statusBadge, priBadge, t.Title)
	if len(badges) > 0 {
		line += "  " + strings.Join(badges, " ")
	}

	if t.Status.Closed() {
		line = theme.DimmedStyle.Render(line)
	}
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// statusLabel pads statuses to a common width so titles line up.
func statusLabel(s model.TaskStatus) string {
	return fmt.Sprintf("%-9s", string(s))
}

// priorityLabel returns a short label for the given priority.
func priorityLabel(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "H"
	case model.PriorityMedium:
		return "M"
	case model.PriorityLow:
		return "L"
	default:
		return "?"
	}
}
