package taskview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/keys"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/theme"
)

// BackMsg signals the parent to navigate back to the board.
type BackMsg struct{}

// CommentMsg asks the parent to post a comment.
type CommentMsg struct {
	TaskID  model.ID
	Content string
}

// EditCommentMsg asks the parent to change a comment.
type EditCommentMsg struct {
	CommentID model.ID
	Content   string
}

// DeleteCommentMsg asks the parent to delete a comment.
type DeleteCommentMsg struct {
	CommentID model.ID
}

// StatusMsg asks the parent to move the task to Status.
type StatusMsg struct {
	TaskID model.ID
	Status model.TaskStatus
}

// EditTaskMsg asks the parent to open the task form on TaskID.
type EditTaskMsg struct {
	TaskID model.ID
}

// DeleteTaskMsg asks the parent to delete TaskID.
type DeleteTaskMsg struct {
	TaskID model.ID
}

// Viewer is who is looking at the task.
type Viewer struct {
	Email string
	Role  model.Role
}

type composeMode int

const (
	composeOff composeMode = iota
	composeNew
	composeEdit
)

// Model is the task detail view with its comment thread and composer.
type Model struct {
	task     *model.Task
	comments []model.Comment
	viewer   Viewer
	now      time.Time

	viewport viewport.Model
	composer textinput.Model
	mode     composeMode
	editing  model.ID

	keys    *keys.KeyMap
	width   int
	height  int
	loading bool
}

// New creates a new task view model.
func New(k *keys.KeyMap, viewer Viewer, width, height int) Model {
	vp := viewport.New(width, height-3)
	vp.Style = lipgloss.NewStyle()

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Width = width - 4

	return Model{
		viewport: vp,
		composer: ti,
		viewer:   viewer,
		keys:     k,
		width:    width,
		height:   height,
		now:      time.Now(),
	}
}

// Init returns the initial command for the task view.
func (m Model) Init() tea.Cmd {
	return nil
}

// TaskID returns the displayed task id, or "" when none.
func (m Model) TaskID() model.ID {
	if m.task == nil {
		return ""
	}
	return m.task.ID
}

// Composing reports whether the composer has keyboard focus.
func (m Model) Composing() bool {
	return m.mode != composeOff
}

// SetTask updates the displayed task and thread and re-renders. The
// scroll position is kept unless the task changed.
func (m *Model) SetTask(t model.Task, comments []model.Comment, now time.Time) {
	changed := m.task == nil || m.task.ID != t.ID
	m.task = &t
	m.comments = comments
	m.now = now
	m.loading = false
	m.viewport.SetContent(m.renderContent())
	if changed {
		m.viewport.GotoTop()
	}
}

// Clear drops the displayed task, e.g. after it was deleted remotely.
func (m *Model) Clear() {
	m.task = nil
	m.comments = nil
	m.mode = composeOff
	m.composer.Blur()
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
}

// Update handles messages for the task view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.mode != composeOff {
		return m.handleComposerKeys(keyMsg)
	}
	if m.task == nil {
		if key.Matches(keyMsg, m.keys.Back) {
			return m, func() tea.Msg { return BackMsg{} }
		}
		return m, nil
	}

	id := m.task.ID
	switch {
	case key.Matches(keyMsg, m.keys.Back):
		return m, func() tea.Msg { return BackMsg{} }

	case key.Matches(keyMsg, m.keys.Comment):
		if !derive.CommentingAllowed(m.viewer.Role, m.task.Status) {
			return m, nil
		}
		m.mode = composeNew
		m.composer.Placeholder = "write a comment..."
		m.composer.Reset()
		return m, m.composer.Focus()

	case key.Matches(keyMsg, m.keys.EditComment):
		c, ok := m.lastEditable()
		if !ok {
			return m, nil
		}
		m.mode = composeEdit
		m.editing = c.ID
		m.composer.Placeholder = ""
		m.composer.SetValue(c.Content)
		return m, m.composer.Focus()

	case key.Matches(keyMsg, m.keys.DeleteComment):
		c, ok := m.lastEditable()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return DeleteCommentMsg{CommentID: c.ID} }

	case key.Matches(keyMsg, m.keys.CycleStatus):
		next := m.task.Status.Next()
		return m, func() tea.Msg { return StatusMsg{TaskID: id, Status: next} }

	case key.Matches(keyMsg, m.keys.EditTask):
		return m, func() tea.Msg { return EditTaskMsg{TaskID: id} }

	case key.Matches(keyMsg, m.keys.DeleteTask):
		return m, func() tea.Msg { return DeleteTaskMsg{TaskID: id} }
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleComposerKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = composeOff
		m.composer.Blur()
		m.composer.Reset()
		return m, nil

	case "enter":
		content := strings.TrimSpace(m.composer.Value())
		mode, editing := m.mode, m.editing
		m.mode = composeOff
		m.composer.Blur()
		m.composer.Reset()
		if content == "" || m.task == nil {
			return m, nil
		}
		if mode == composeEdit {
			return m, func() tea.Msg { return EditCommentMsg{CommentID: editing, Content: content} }
		}
		id := m.task.ID
		return m, func() tea.Msg { return CommentMsg{TaskID: id, Content: content} }
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

// lastEditable returns the viewer's newest comment that may still be
// changed.
func (m Model) lastEditable() (model.Comment, bool) {
	if m.task == nil {
		return model.Comment{}, false
	}
	for i := len(m.comments) - 1; i >= 0; i-- {
		c := m.comments[i]
		if derive.CommentEditable(c, m.viewer.Email, m.viewer.Role, m.task.Status, m.now) {
			return c, true
		}
	}
	return model.Comment{}, false
}

// View renders the task view.
func (m Model) View() string {
	if m.loading && m.task == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("Loading task...")
	}

	if m.task == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("This task no longer exists.\n\nPress esc to go back.")
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), m.renderComposer())
}

func (m Model) renderComposer() string {
	switch {
	case m.mode != composeOff:
		return m.composer.View()
	case !derive.CommentingAllowed(m.viewer.Role, m.task.Status):
		return theme.HelpStyle.Render("Commenting is closed for cancelled tasks.")
	default:
		return theme.HelpStyle.Render("c comment · s next status · esc back")
	}
}

// renderContent builds the task header and the thread for the viewport.
func (m Model) renderContent() string {
	if m.task == nil {
		return ""
	}

	task := m.task
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(task.Title))

	urgency := derive.ComputeUrgency(task.DueDate, task.Status, m.now)
	badges := []string{
		theme.StatusStyle(task.Status).Render(string(task.Status)),
		theme.PriorityStyle(task.Priority).Render(string(task.Priority)),
	}
	if label := urgency.Label(); label != "" {
		badges = append(badges, theme.UrgencyStyle(urgency).Render(label))
	}
	sections = append(sections, strings.Join(badges, "  "), "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	meta := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-9s", label+":")), valStyle.Render(value)))
	}
	meta("Assignee", task.AssigneeID)
	meta("Creator", task.CreatedByID)
	if !task.DueDate.IsZero() {
		meta("Due", task.DueDate.String())
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(0, min(m.width-4, 80))))
	sections = append(sections, "", separator, "")

	body := task.Description
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No description")
	}
	sections = append(sections, body, "", separator, "")

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, headerStyle.Render(fmt.Sprintf("Comments (%d)", len(m.comments))), "")

	timeStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	for _, c := range m.comments {
		header := fmt.Sprintf("%s  %s", theme.AuthorStyle.Render(c.AuthorEmail), timeStyle.Render(derive.CommentAge(c.Created(), m.now)))
		if strings.EqualFold(c.AuthorEmail, m.viewer.Email) && c.IsReadByRecipient {
			header += timeStyle.Render("  ✓ seen")
		}
		if derive.CommentEditable(c, m.viewer.Email, m.viewer.Role, task.Status, m.now) {
			header += timeStyle.Render("  (E edit · x delete)")
		}
		sections = append(sections, header, c.Content, "")
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetSize updates the task view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 3
	m.composer.Width = width - 4
	m.viewport.SetContent(m.renderContent())
}
