package taskform

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/theme"
)

// TaskSubmittedMsg is dispatched when the form completes. ID is empty
// when a new task is being created.
type TaskSubmittedMsg struct {
	ID    model.ID
	Input api.TaskInput
}

// CancelMsg is dispatched when the user cancels the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	title       string
	description string
	priority    model.Priority
	dueDate     string
	status      model.TaskStatus
	assignee    string
}

// Model is the Bubble Tea model for the task create/edit form.
type Model struct {
	form      *huh.Form
	fb        *formBindings
	editMode  bool
	editID    model.ID
	createdBy string
	assignees []model.User
	width     int
	height    int
}

// New creates a new task form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{priority: model.PriorityMedium, status: model.StatusPending},
		width:  width,
		height: height,
	}
}

// SetAssignees sets the users offered in the assignee selector.
func (m *Model) SetAssignees(users []model.User) {
	m.assignees = users
}

// StartCreate initializes the form for creating a new task on behalf of
// creator.
func (m *Model) StartCreate(creator string) tea.Cmd {
	m.editMode = false
	m.editID = ""
	m.createdBy = creator
	*m.fb = formBindings{priority: model.PriorityMedium, status: model.StatusPending}
	if len(m.assignees) > 0 {
		m.fb.assignee = m.assignees[0].Email
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// StartEdit initializes the form for editing an existing task.
func (m *Model) StartEdit(t model.Task) tea.Cmd {
	m.editMode = true
	m.editID = t.ID
	m.createdBy = t.CreatedByID
	*m.fb = formBindings{
		title:       t.Title,
		description: t.Description,
		priority:    t.Priority,
		status:      t.Status,
		assignee:    t.AssigneeID,
	}
	if !t.DueDate.IsZero() {
		m.fb.dueDate = t.DueDate.String()
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the task form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the task form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "New Task"
	if m.editMode {
		titleText = "Edit Task"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(titleText) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	fields := []huh.Field{
		huh.NewInput().
			Title("Title").
			Placeholder("What needs to be done?").
			Value(&m.fb.title).
			Validate(validateRequired("Title")),
		huh.NewText().
			Title("Description").
			Placeholder("Optional details...").
			Value(&m.fb.description),
		huh.NewSelect[model.Priority]().
			Title("Priority").
			Options(
				huh.NewOption("High", model.PriorityHigh),
				huh.NewOption("Medium", model.PriorityMedium),
				huh.NewOption("Low", model.PriorityLow),
			).
			Value(&m.fb.priority),
		huh.NewInput().
			Title("Due Date").
			Placeholder("YYYY-MM-DD (optional)").
			Value(&m.fb.dueDate).
			Validate(validateOptionalDate),
		m.assigneeField(),
	}

	if m.editMode {
		opts := make([]huh.Option[model.TaskStatus], 0, len(model.Statuses))
		for _, s := range model.Statuses {
			opts = append(opts, huh.NewOption(string(s), s))
		}
		fields = append(fields,
			huh.NewSelect[model.TaskStatus]().
				Title("Status").
				Options(opts...).
				Value(&m.fb.status),
		)
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

// assigneeField offers the known users, or a free-form email input when
// the user directory could not be loaded.
func (m *Model) assigneeField() huh.Field {
	if len(m.assignees) == 0 {
		return huh.NewInput().
			Title("Assignee").
			Placeholder("email").
			Value(&m.fb.assignee).
			Validate(validateRequired("Assignee"))
	}

	opts := make([]huh.Option[string], 0, len(m.assignees)+1)
	known := false
	for _, u := range m.assignees {
		label := u.Email
		if u.Name != "" {
			label = fmt.Sprintf("%s <%s>", u.Name, u.Email)
		}
		opts = append(opts, huh.NewOption(label, u.Email))
		if strings.EqualFold(u.Email, m.fb.assignee) {
			known = true
		}
	}
	// Keep the current assignee selectable when they are not listed.
	if !known && m.fb.assignee != "" {
		opts = append(opts, huh.NewOption(m.fb.assignee, m.fb.assignee))
	}
	return huh.NewSelect[string]().
		Title("Assignee").
		Options(opts...).
		Value(&m.fb.assignee)
}

func (m Model) handleSubmit() tea.Cmd {
	in := api.TaskInput{
		Title:       strings.TrimSpace(m.fb.title),
		Description: m.fb.description,
		Priority:    m.fb.priority,
		CreatedByID: m.createdBy,
		AssigneeID:  strings.TrimSpace(m.fb.assignee),
	}
	if m.editMode {
		in.Status = m.fb.status
	}
	if d, err := model.ParseDate(strings.TrimSpace(m.fb.dueDate)); err == nil {
		in.DueDate = d
	}

	id := m.editID
	return func() tea.Msg { return TaskSubmittedMsg{ID: id, Input: in} }
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateOptionalDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := model.ParseDate(s); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}
