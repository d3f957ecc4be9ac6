package app

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/keys"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/session"
	"github.com/nhle/taskpulse/internal/store"
	appsync "github.com/nhle/taskpulse/internal/sync"
	"github.com/nhle/taskpulse/internal/ui"
	"github.com/nhle/taskpulse/internal/ui/board"
	"github.com/nhle/taskpulse/internal/ui/command"
	helpview "github.com/nhle/taskpulse/internal/ui/help"
	"github.com/nhle/taskpulse/internal/ui/taskform"
	"github.com/nhle/taskpulse/internal/ui/taskview"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewBoard ViewState = iota
	ViewTask
	ViewForm
	ViewHelp
	ViewCommand
)

// Deps is everything the root model talks to. The engines are started and
// stopped by the caller.
type Deps struct {
	Engine    *appsync.Engine
	Board     *derive.Engine
	Session   *session.Session
	Directory Directory
	Journal   store.Journal

	// Tick is how often relative times in the header and thread are
	// refreshed. Defaults to 30s.
	Tick time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Model is the root Bubble Tea model that manages view routing, layout,
// and the hand-off between the sync engine and the views.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	engine    *appsync.Engine
	derived   *derive.Engine
	sess      *session.Session
	directory Directory
	journal   store.Journal
	tick      time.Duration
	now       func() time.Time

	boards      chan derive.Board
	unsubscribe func()

	board       board.Model
	taskView    taskview.Model
	taskForm    taskform.Model
	helpView    helpview.Model
	commandView command.Model

	showAll  bool
	editing  *model.Task
	unread   int
	status   string
	statusOK bool
	authLost bool
	ready    bool
}

// New creates the root model and subscribes it to board updates.
func New(d Deps) Model {
	k := keys.DefaultKeyMap()
	if d.Tick <= 0 {
		d.Tick = 30 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	boards := make(chan derive.Board, 1)
	unsubscribe := d.Board.Subscribe(latest(boards))

	viewer := taskview.Viewer{Email: d.Session.Email(), Role: d.Session.Role()}
	return Model{
		currentView: ViewBoard,
		keys:        k,
		engine:      d.Engine,
		derived:     d.Board,
		sess:        d.Session,
		directory:   d.Directory,
		journal:     d.Journal,
		tick:        d.Tick,
		now:         d.Now,
		boards:      boards,
		unsubscribe: unsubscribe,
		board:       board.New(k, 80, 24),
		taskView:    taskview.New(k, viewer, 80, 24),
		taskForm:    taskform.New(80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
	}
}

// Init starts listening for boards and notices and arms the clock.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForBoard(m.boards),
		waitForNotice(m.engine.Notices()),
		m.tickCmd(),
		m.fetchUnreadCount(),
	}
	if b := m.derived.Board(); b.Version > 0 {
		cmds = append(cmds, func() tea.Msg { return boardMsg{board: b} })
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.board.SetSize(contentWidth, contentHeight)
		m.taskView.SetSize(contentWidth, contentHeight)
		m.taskForm.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case boardMsg:
		cmd := m.board.SetBoard(msg.board)
		m.refreshTaskView()
		return m, tea.Batch(cmd, waitForBoard(m.boards))

	case noticeMsg:
		m.handleNotice(msg.notice)
		return m, tea.Batch(waitForNotice(m.engine.Notices()), m.fetchUnreadCount())

	case tickMsg:
		m.refreshTaskView()
		return m, m.tickCmd()

	case unreadCountMsg:
		m.unread = msg.count
		return m, nil

	case actionResultMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else if msg.info != "" {
			m.setInfo(msg.info)
		}
		return m, nil

	case focusResultMsg:
		if msg.err != nil && msg.taskID == m.taskView.TaskID() {
			m.setError(msg.err)
		}
		m.taskView.SetLoading(false)
		m.refreshTaskView()
		return m, m.fetchUnreadCount()

	case assigneesMsg:
		m.taskForm.SetAssignees(msg.users)
		if m.currentView != ViewForm {
			return m, nil
		}
		if m.editing != nil {
			return m, m.taskForm.StartEdit(*m.editing)
		}
		return m, m.taskForm.StartCreate(m.sess.Email())

	case board.SelectedTaskMsg:
		return m, m.openTask(msg.TaskID)

	case board.QueryMsg:
		m.derived.SetQuery(msg.Query)
		return m, nil

	case taskview.BackMsg:
		m.engine.Unfocus()
		m.currentView = ViewBoard
		return m, nil

	case taskview.StatusMsg:
		return m, m.changeStatus(msg.TaskID, msg.Status)

	case taskview.CommentMsg:
		return m, m.addComment(msg.TaskID, msg.Content)

	case taskview.EditCommentMsg:
		return m, m.editComment(msg.CommentID, msg.Content)

	case taskview.DeleteCommentMsg:
		return m, m.deleteComment(msg.CommentID)

	case taskview.EditTaskMsg:
		return m, m.startEdit(msg.TaskID)

	case taskview.DeleteTaskMsg:
		m.engine.Unfocus()
		m.currentView = ViewBoard
		return m, m.deleteTask(msg.TaskID)

	case taskform.TaskSubmittedMsg:
		m.currentView = m.previousView
		m.editing = nil
		if msg.ID == "" {
			return m, m.createTask(msg.Input)
		}
		return m, m.updateTask(msg.ID, msg.Input)

	case taskform.CancelMsg:
		m.currentView = m.previousView
		m.editing = nil
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(msg)

	case command.ErrorMsg:
		m.currentView = m.previousView
		m.setError(msg.Err)
		return m, nil

	case tea.KeyMsg:
		if !m.authLost {
			m.status = ""
		}

		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		if msg.String() == "esc" {
			switch m.currentView {
			case ViewCommand:
				m.currentView = m.previousView
				return m, nil
			case ViewForm:
				m.currentView = m.previousView
				m.editing = nil
				return m, nil
			}
		}
		if m.capturesInput() {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.currentView == ViewBoard {
				return m, m.quit()
			}

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Command):
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
		}

		if m.currentView == ViewBoard {
			if cmd, handled := m.handleBoardKeys(msg); handled {
				return m, cmd
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// capturesInput reports whether the active view owns every keystroke.
func (m Model) capturesInput() bool {
	switch m.currentView {
	case ViewForm, ViewCommand:
		return true
	case ViewBoard:
		return m.board.Searching()
	case ViewTask:
		return m.taskView.Composing()
	default:
		return false
	}
}

// handleBoardKeys runs the board shortcuts that act on the selected row.
func (m *Model) handleBoardKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	row, selected := m.board.Selected()

	switch {
	case key.Matches(msg, m.keys.Refresh):
		m.engine.Refresh()
		m.setInfo("Refreshing...")
		return nil, true

	case key.Matches(msg, m.keys.ToggleAll):
		m.setShowAll(!m.showAll)
		return nil, true

	case key.Matches(msg, m.keys.NewTask):
		return m.startCreate(), true

	case key.Matches(msg, m.keys.EditTask):
		if !selected {
			return nil, true
		}
		return m.startEdit(row.Task.ID), true

	case key.Matches(msg, m.keys.DeleteTask):
		if !selected {
			return nil, true
		}
		return m.deleteTask(row.Task.ID), true

	case key.Matches(msg, m.keys.CycleStatus):
		if !selected {
			return nil, true
		}
		return m.changeStatus(row.Task.ID, row.Task.Status.Next()), true
	}
	return nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewBoard:
		m.board, cmd = m.board.Update(msg)
	case ViewTask:
		m.taskView, cmd = m.taskView.Update(msg)
	case ViewForm:
		m.taskForm, cmd = m.taskForm.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerTitle := "TaskPulse"
	if m.unread > 0 {
		headerTitle = fmt.Sprintf("TaskPulse [%d new]", m.unread)
	}
	header := m.layout.RenderHeader(headerTitle, m.connection())
	content := m.renderContent()

	var statusBar string
	if m.status != "" {
		statusBar = m.layout.RenderStatusBar(m.status, !m.statusOK)
	} else {
		statusBar = m.layout.RenderStatusBar(m.keyHints(), false)
	}

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewBoard:
		return m.board.View()
	case ViewTask:
		return m.taskView.View()
	case ViewForm:
		return m.taskForm.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// connection summarizes the engine status for the header.
func (m Model) connection() ui.Connection {
	st := m.engine.Status()
	return ui.Connection{
		State:    st.Connection,
		Polling:  st.Polling,
		LastSync: st.LastSync,
		Now:      m.now(),
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewTask:
		if m.taskView.Composing() {
			return "enter send | esc cancel"
		}
		return "esc back | c comment | s status | e edit | D delete | E/x my last comment"
	case ViewForm:
		return "enter submit | esc cancel"
	default:
		return "q quit | ? help | enter open | n new | s status | a mine/all | / search | : command"
	}
}

// openTask switches to the task view and focuses the engine on id.
func (m *Model) openTask(id model.ID) tea.Cmd {
	m.previousView = ViewBoard
	m.currentView = ViewTask
	if t, ok := m.engine.Tasks().Get(id); ok {
		m.taskView.SetTask(t, m.engine.Threads().GetThread(id), m.now())
	} else {
		m.taskView.Clear()
	}
	m.taskView.SetLoading(true)
	return m.focus(id)
}

// refreshTaskView re-reads the open task and its thread from the stores.
func (m *Model) refreshTaskView() {
	id := m.taskView.TaskID()
	if id == "" {
		id = m.engine.Focused()
	}
	if id == "" {
		return
	}
	if t, ok := m.engine.Tasks().Get(id); ok {
		m.taskView.SetTask(t, m.engine.Threads().GetThread(id), m.now())
		return
	}
	if m.engine.Tasks().Deleted(id) {
		m.taskView.Clear()
	}
}

func (m *Model) startCreate() tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewForm
	m.editing = nil
	return m.loadAssignees()
}

func (m *Model) startEdit(id model.ID) tea.Cmd {
	t, ok := m.engine.Tasks().Get(id)
	if !ok {
		m.setError(appsync.ErrUnknownTask)
		return nil
	}
	m.previousView = m.currentView
	m.currentView = ViewForm
	m.editing = &t
	return m.loadAssignees()
}

func (m *Model) setShowAll(all bool) {
	m.showAll = all
	m.board.SetShowAll(all)
	m.derived.SetShowAll(all)
}

func (m *Model) handleNotice(n appsync.Notice) {
	switch n.Kind {
	case appsync.NoticeSynced:
		if m.authLost {
			m.authLost = false
			m.status = ""
		}
	case appsync.NoticeAuth:
		m.authLost = true
		m.status = n.Message
		m.statusOK = false
	case appsync.NoticeError:
		m.status = n.Message
		m.statusOK = false
	case appsync.NoticeAssigned, appsync.NoticeComment:
		if !m.authLost {
			m.setInfo(n.Message)
		}
	}
}

func (m *Model) setInfo(msg string) {
	m.status = msg
	m.statusOK = true
}

func (m *Model) setError(err error) {
	m.status = userMessage(err)
	m.statusOK = false
}

func (m *Model) quit() tea.Cmd {
	m.engine.Unfocus()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return tea.Quit
}

// executeCommand handles a command from the command palette.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	switch c.Name {
	case command.Refresh:
		m.engine.Refresh()
		m.setInfo("Refreshing...")
	case command.All:
		m.setShowAll(true)
	case command.Mine:
		m.setShowAll(false)
	case command.NewTask:
		return m.startCreate()
	case command.Search:
		m.derived.SetQuery(c.Arg)
	case command.Open:
		if c.Arg == "" {
			m.setError(fmt.Errorf("open needs a task id"))
			return nil
		}
		return m.openTask(model.ID(c.Arg))
	case command.Logout:
		if err := m.sess.Logout(); err != nil {
			m.setError(err)
			return nil
		}
		return m.quit()
	case command.Quit:
		return m.quit()
	}
	return nil
}
