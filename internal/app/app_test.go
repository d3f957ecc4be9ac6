package app

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/session"
	appsync "github.com/nhle/taskpulse/internal/sync"
	"github.com/nhle/taskpulse/internal/testutil"
	"github.com/nhle/taskpulse/internal/ui/command"
	"github.com/nhle/taskpulse/internal/ui/taskview"
)

const (
	boss = "boss@example.com"
	dev  = "dev@example.com"
)

type fixture struct {
	api     *testutil.FakeAPI
	engine  *appsync.Engine
	derived *derive.Engine
	model   Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := testutil.NewFakeAPI(t)
	fake.AddTask(model.Task{
		ID:          "1",
		Title:       "Write report",
		Priority:    model.PriorityHigh,
		Status:      model.StatusPending,
		CreatedByID: boss,
		AssigneeID:  dev,
	})

	sess := session.New(nil)
	require.NoError(t, sess.Set(session.Data{Email: dev, IsLoggedIn: true, UserRole: model.RoleEmployee}))

	client := api.NewClient(fake.URL)
	eng := appsync.New(client, nil, sess, appsync.Options{
		PollInterval: 20 * time.Millisecond,
		Logger:       log.New(io.Discard, "", 0),
	})
	eng.Start()
	t.Cleanup(eng.Stop)

	derived := derive.NewEngine(eng.Tasks(), eng.Threads(), derive.EngineOptions{
		Viewer: derive.Viewer{Email: dev, Role: model.RoleEmployee},
	})
	testutil.WaitFor(t, func() bool { return eng.Tasks().Len() == 1 }, "first snapshot")

	m := New(Deps{Engine: eng, Board: derived, Session: sess, Directory: client})
	f := &fixture{api: fake, engine: eng, derived: derived, model: m}
	f.send(tea.WindowSizeMsg{Width: 100, Height: 30})
	f.send(boardMsg{board: derived.Recompute()})
	return f
}

// send feeds msg to the model and returns the resulting command.
func (f *fixture) send(msg tea.Msg) tea.Cmd {
	next, cmd := f.model.Update(msg)
	f.model = next.(Model)
	return cmd
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestBoardShowsViewerTasks(t *testing.T) {
	f := newFixture(t)

	row, ok := f.model.board.Selected()
	require.True(t, ok)
	assert.Equal(t, model.ID("1"), row.Task.ID)
	assert.Contains(t, f.model.View(), "Write report")
}

func TestCycleStatusFromBoard(t *testing.T) {
	f := newFixture(t)

	cmd := f.send(keyPress("s"))
	require.NotNil(t, cmd)
	f.send(cmd())

	saved, ok := f.api.Task("1")
	require.True(t, ok)
	assert.Equal(t, model.StatusOngoing, saved.Status)
	assert.Equal(t, "Status changed to ONGOING", f.model.status)
	assert.True(t, f.model.statusOK)
}

func TestOpenTaskFocusesAndBackUnfocuses(t *testing.T) {
	f := newFixture(t)

	cmd := f.send(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd = f.send(cmd())
	require.NotNil(t, cmd)
	f.send(cmd())

	assert.Equal(t, ViewTask, f.model.currentView)
	assert.Equal(t, model.ID("1"), f.engine.Focused())
	assert.Equal(t, model.ID("1"), f.model.taskView.TaskID())

	cmd = f.send(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	msg := cmd()
	assert.IsType(t, taskview.BackMsg{}, msg)
	f.send(msg)

	assert.Equal(t, ViewBoard, f.model.currentView)
	assert.Equal(t, model.ID(""), f.engine.Focused())
}

func TestCommandsToggleScope(t *testing.T) {
	f := newFixture(t)

	f.send(command.CommandMsg{Name: command.All})
	assert.True(t, f.model.showAll)

	f.send(command.CommandMsg{Name: command.Mine})
	assert.False(t, f.model.showAll)

	f.send(command.ErrorMsg{Err: errors.New(`unknown command "x"`)})
	assert.Equal(t, `unknown command "x"`, f.model.status)
	assert.False(t, f.model.statusOK)
}

func TestAuthNoticeSticksUntilNextSync(t *testing.T) {
	f := newFixture(t)

	f.send(noticeMsg{notice: appsync.Notice{Kind: appsync.NoticeAuth, Message: "Session expired"}})
	assert.Equal(t, "Session expired", f.model.status)

	f.send(keyPress("j"))
	assert.Equal(t, "Session expired", f.model.status)

	f.send(noticeMsg{notice: appsync.Notice{Kind: appsync.NoticeSynced}})
	assert.Empty(t, f.model.status)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, appsync.ErrCommentingClosed.Error(), userMessage(appsync.ErrCommentingClosed))
	assert.Equal(t, "Task not found", userMessage(&api.RequestError{StatusCode: 404, Message: "Task not found"}))
}

func TestLatestKeepsNewestBoard(t *testing.T) {
	ch := make(chan derive.Board, 1)
	send := latest(ch)
	send(derive.Board{Version: 1})
	send(derive.Board{Version: 2})

	b := <-ch
	assert.Equal(t, uint64(2), b.Version)
}
