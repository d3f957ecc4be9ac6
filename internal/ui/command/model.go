package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskpulse/internal/theme"
)

// Name identifies a palette command.
type Name string

// Known commands.
const (
	Refresh Name = "refresh"
	All     Name = "all"
	Mine    Name = "mine"
	NewTask Name = "new"
	Search  Name = "search"
	Open    Name = "open"
	Logout  Name = "logout"
	Quit    Name = "quit"
)

// commands lists every known command with its one-line description, in
// the order suggestions are offered.
var commands = []struct {
	name Name
	desc string
}{
	{Refresh, "re-fetch every task now"},
	{All, "show every task"},
	{Mine, "show tasks you created or are assigned"},
	{NewTask, "create a task"},
	{Search, "filter titles, e.g. search invoice"},
	{Open, "open a task by id, e.g. open 42"},
	{Logout, "forget the stored session and quit"},
	{Quit, "leave the application"},
}

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name Name
	Arg  string
}

// Parse turns palette input into a command. Unique prefixes are accepted,
// so "ref" runs refresh.
func Parse(input string) (CommandMsg, error) {
	word, arg, _ := strings.Cut(strings.TrimSpace(input), " ")
	word = strings.ToLower(word)
	if word == "" {
		return CommandMsg{}, fmt.Errorf("empty command")
	}

	var match []Name
	for _, c := range commands {
		if string(c.name) == word {
			match = []Name{c.name}
			break
		}
		if strings.HasPrefix(string(c.name), word) {
			match = append(match, c.name)
		}
	}
	switch len(match) {
	case 0:
		return CommandMsg{}, fmt.Errorf("unknown command %q", word)
	case 1:
		return CommandMsg{Name: match[0], Arg: strings.TrimSpace(arg)}, nil
	default:
		return CommandMsg{}, fmt.Errorf("ambiguous command %q", word)
	}
}

// ErrorMsg reports palette input that did not parse.
type ErrorMsg struct {
	Err error
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	suggestions := make([]string, len(commands))
	for i, c := range commands {
		suggestions[i] = string(c.name)
	}
	ti.SetSuggestions(suggestions)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			raw := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if raw == "" {
				return m, nil
			}
			cmd, err := Parse(raw)
			if err != nil {
				return m, func() tea.Msg { return ErrorMsg{Err: err} }
			}
			return m, func() tea.Msg { return cmd }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Command Palette")
	input := m.input.View()

	nameStyle := lipgloss.NewStyle().Foreground(theme.ColorBlue).Width(10)
	var lines []string
	for _, c := range commands {
		lines = append(lines, nameStyle.Render(string(c.name))+theme.HelpStyle.Render(c.desc))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, input, "", lipgloss.JoinVertical(lipgloss.Left, lines...))

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
