package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/taskpulse/internal/realtime"
	"github.com/nhle/taskpulse/internal/theme"
)

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// Connection describes the sync state shown on the right of the header.
type Connection struct {
	State    realtime.State
	Polling  bool
	LastSync time.Time
	Now      time.Time
}

// Label renders the connection summary, e.g. "live · synced 2 minutes ago".
func (c Connection) Label() string {
	mode := "live"
	switch {
	case c.State == realtime.Connecting:
		mode = "connecting"
	case c.State != realtime.Connected && c.Polling:
		mode = "offline, polling"
	case c.State != realtime.Connected:
		mode = "offline"
	}
	if c.LastSync.IsZero() {
		return mode
	}
	ago := "just now"
	if c.Now.Sub(c.LastSync) >= time.Minute {
		ago = humanize.RelTime(c.LastSync, c.Now, "ago", "from now")
	}
	return fmt.Sprintf("%s · synced %s", mode, ago)
}

// RenderHeader renders the top header bar with a title and the
// connection state.
func (l Layout) RenderHeader(title string, conn Connection) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.ConnectionStyle(conn.State).
		Align(lipgloss.Right).
		Render(conn.Label())

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints, or
// with msg in the error style when isError is set.
func (l Layout) RenderStatusBar(msg string, isError bool) string {
	style := theme.StatusBarStyle
	if isError {
		style = theme.ErrorBarStyle
	}
	rendered := style.Render(msg)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}
