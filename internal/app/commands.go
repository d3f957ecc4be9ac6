package app

import (
	"context"
	"errors"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/model"
	appsync "github.com/nhle/taskpulse/internal/sync"
)

// Directory lists the users a task can be assigned to.
type Directory interface {
	NonAdminUsers(ctx context.Context) ([]model.User, error)
}

// boardMsg carries a freshly derived board.
type boardMsg struct {
	board derive.Board
}

// noticeMsg carries something the sync engine wants the user to see.
type noticeMsg struct {
	notice appsync.Notice
}

// tickMsg refreshes relative times.
type tickMsg time.Time

// unreadCountMsg carries the number of unread journal entries.
type unreadCountMsg struct {
	count int
}

// actionResultMsg reports the outcome of a user action.
type actionResultMsg struct {
	info string
	err  error
}

// focusResultMsg reports that opening a task finished.
type focusResultMsg struct {
	taskID model.ID
	err    error
}

// assigneesMsg carries the users offered by the task form.
type assigneesMsg struct {
	users []model.User
}

// latest returns a board subscriber that keeps only the newest board in
// ch, so a slow UI never blocks the derive engine.
func latest(ch chan derive.Board) func(derive.Board) {
	return func(b derive.Board) {
		for {
			select {
			case ch <- b:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}
}

func waitForBoard(ch <-chan derive.Board) tea.Cmd {
	return func() tea.Msg {
		return boardMsg{board: <-ch}
	}
}

func waitForNotice(ch <-chan appsync.Notice) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg{notice: n}
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// fetchUnreadCount returns a tea.Cmd that queries the journal for the
// number of unread notifications.
func (m Model) fetchUnreadCount() tea.Cmd {
	j := m.journal
	if j == nil {
		return nil
	}
	return func() tea.Msg {
		notifications, err := j.GetUnreadNotifications(context.Background())
		if err != nil {
			return unreadCountMsg{count: 0}
		}
		return unreadCountMsg{count: len(notifications)}
	}
}

func (m Model) loadAssignees() tea.Cmd {
	dir := m.directory
	return func() tea.Msg {
		if dir == nil {
			return assigneesMsg{}
		}
		users, err := dir.NonAdminUsers(context.Background())
		if err != nil {
			// The form falls back to a free-form email field.
			return assigneesMsg{}
		}
		return assigneesMsg{users: users}
	}
}

func (m Model) focus(id model.ID) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		return focusResultMsg{taskID: id, err: e.Focus(context.Background(), id)}
	}
}

func (m Model) changeStatus(id model.ID, status model.TaskStatus) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		if err := e.ChangeStatus(context.Background(), id, status); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{info: "Status changed to " + string(status)}
	}
}

func (m Model) createTask(in api.TaskInput) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		t, err := e.CreateTask(context.Background(), in)
		if err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{info: "Created " + t.Title}
	}
}

func (m Model) updateTask(id model.ID, in api.TaskInput) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		t, err := e.UpdateTask(context.Background(), id, in)
		if err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{info: "Saved " + t.Title}
	}
}

func (m Model) deleteTask(id model.ID) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		if err := e.DeleteTask(context.Background(), id); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{info: "Task deleted"}
	}
}

func (m Model) addComment(taskID model.ID, content string) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		if _, err := e.AddComment(context.Background(), taskID, content); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{}
	}
}

func (m Model) editComment(id model.ID, content string) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		if _, err := e.EditComment(context.Background(), id, content); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{info: "Comment updated"}
	}
}

func (m Model) deleteComment(id model.ID) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		if err := e.DeleteComment(context.Background(), id); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{info: "Comment deleted"}
	}
}

// userMessage is the status bar text for err. Transport and server
// failures get the API's wording; local validation errors are shown as is.
func userMessage(err error) string {
	var (
		reqErr  *api.RequestError
		authErr *api.AuthError
		urlErr  *url.Error
	)
	if errors.As(err, &reqErr) || errors.As(err, &authErr) || errors.As(err, &urlErr) {
		return api.UserMessage(err)
	}
	return err.Error()
}
