package help

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/keys"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/theme"
)

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Keyboard Shortcuts")

	m.help.Width = m.width - 4
	m.help.ShowAll = true
	helpText := m.help.View(m.keys)

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		helpText,
		"",
		titleStyle.Render("Badges"),
		legend(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// legend explains the row badges shown on the board.
func legend() string {
	desc := lipgloss.NewStyle().Foreground(theme.ColorGray)
	line := func(badge, text string) string {
		return lipgloss.NewStyle().Width(16).Render(badge) + desc.Render(text)
	}

	lines := []string{
		line(theme.UrgencyStyle(derive.UrgencyOverdue).Render(derive.UrgencyOverdue.Label()), "due date has passed"),
		line(theme.UrgencyStyle(derive.UrgencyDueToday).Render(derive.UrgencyDueToday.Label()), "due before midnight"),
		line(theme.UrgencyStyle(derive.UrgencyDueTomorrow).Render(derive.UrgencyDueTomorrow.Label()), "due tomorrow"),
		line(theme.UrgencyStyle(derive.UrgencyDueIn2Days).Render(derive.UrgencyDueIn2Days.Label()), "due the day after tomorrow"),
		line(theme.UnreadStyle.Render("✉ 2"), "unread comments addressed to you"),
		line(theme.NewBadgeStyle.Render("NEW"), "assigned to you and not opened yet"),
	}
	for _, s := range model.Statuses {
		if s.Closed() {
			lines = append(lines, line(theme.DimmedStyle.Render(string(s)), "closed, no urgency shown"))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
