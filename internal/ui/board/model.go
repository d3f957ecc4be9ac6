package board

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/keys"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/theme"
)

// SelectedTaskMsg is sent when a user selects a task to view details.
type SelectedTaskMsg struct {
	TaskID model.ID
}

// QueryMsg is sent when the search query changes.
type QueryMsg struct {
	Query string
}

// Model is the task board view component. It renders whatever
// derive.Board it was last given and never reads the stores itself.
type Model struct {
	list        list.Model
	keys        *keys.KeyMap
	board       derive.Board
	showAll     bool
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates a new board model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, RowDelegate{}, width, height-2)
	l.Title = "My tasks"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search titles..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		keys:        k,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// SetBoard replaces the rendered rows, keeping the selection on the same
// task when it is still present.
func (m *Model) SetBoard(b derive.Board) tea.Cmd {
	var selected model.ID
	if row, ok := m.Selected(); ok {
		selected = row.Task.ID
	}

	m.board = b
	items := make([]list.Item, len(b.Rows))
	index := 0
	for i, r := range b.Rows {
		items[i] = RowItem{Row: r}
		if r.Task.ID == selected {
			index = i
		}
	}
	cmd := m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(index)
	}
	return cmd
}

// SetShowAll switches the title between the viewer's tasks and all tasks.
func (m *Model) SetShowAll(all bool) {
	m.showAll = all
	if all {
		m.list.Title = "All tasks"
	} else {
		m.list.Title = "My tasks"
	}
}

// Selected returns the highlighted row.
func (m Model) Selected() (derive.Row, bool) {
	item, ok := m.list.SelectedItem().(RowItem)
	if !ok {
		return derive.Row{}, false
	}
	return item.Row, true
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the board view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		query := strings.TrimSpace(m.searchInput.Value())
		return m, func() tea.Msg { return QueryMsg{Query: query} }

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		return m, func() tea.Msg { return QueryMsg{} }
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		row, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedTaskMsg{TaskID: row.Task.ID}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.SetValue(m.board.Query)
		return m, m.searchInput.Focus()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the board view.
func (m Model) View() string {
	var top string
	if m.searchMode {
		top = lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
	} else {
		top = m.summary()
	}

	if len(m.list.Items()) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, top, m.renderEmptyState())
	}
	return lipgloss.JoinVertical(lipgloss.Left, top, m.list.View())
}

// summary renders the urgency counts above the list.
func (m Model) summary() string {
	counts := m.board.Counts()
	var parts []string
	for _, u := range []derive.Urgency{
		derive.UrgencyOverdue,
		derive.UrgencyDueToday,
		derive.UrgencyDueTomorrow,
		derive.UrgencyDueIn2Days,
	} {
		if n := counts[u]; n > 0 {
			parts = append(parts, theme.UrgencyStyle(u).Render(fmt.Sprintf("%d %s", n, strings.ToLower(u.Label()))))
		}
	}
	if m.board.Query != "" {
		parts = append(parts, theme.HelpStyle.Render(fmt.Sprintf("matching %q", m.board.Query)))
	}
	if len(parts) == 0 {
		return ""
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(parts, "  "))
}

// renderEmptyState shows guidance text when no tasks are available.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height-1).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.board.Query != "" {
		return style.Render("No matching tasks.\nPress / and clear the search.")
	}
	if !m.showAll {
		return style.Render("Nothing assigned to you or created by you.\n\nPress a to see every task.")
	}
	return style.Render("No tasks yet.\n\nPress n to create one.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
