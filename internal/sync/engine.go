// Package sync keeps the local task and comment stores converged with
// the task service. Stream events and REST snapshots are applied on one
// goroutine in arrival order; polling only runs while the realtime
// channel is down.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/event"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/realtime"
	"github.com/nhle/taskpulse/internal/session"
	"github.com/nhle/taskpulse/internal/store"
	"github.com/nhle/taskpulse/internal/taskstore"
	"github.com/nhle/taskpulse/internal/thread"
)

// API is the part of the REST client the engine uses.
type API interface {
	TaskLister
	GetTask(ctx context.Context, id model.ID) (*model.Task, error)
	CreateTask(ctx context.Context, in api.TaskInput) (*model.Task, error)
	UpdateTask(ctx context.Context, id model.ID, in api.TaskInput) (*model.Task, error)
	DeleteTask(ctx context.Context, id model.ID) error
	UpdateTaskStatus(ctx context.Context, id model.ID, status model.TaskStatus) (*model.Task, error)
	IsTaskNew(ctx context.Context, id model.ID) (bool, error)
	ClearTaskNew(ctx context.Context, id model.ID) error
	ListComments(ctx context.Context, taskID model.ID) ([]model.Comment, error)
	AddComment(ctx context.Context, taskID model.ID, in model.NewComment) (*model.Comment, error)
	EditComment(ctx context.Context, id model.ID, content string) (*model.Comment, error)
	DeleteComment(ctx context.Context, id model.ID) error
	MarkCommentRead(ctx context.Context, id model.ID, userEmail string) error
	MarkThreadRead(ctx context.Context, taskID model.ID, recipientEmail string) error
	CountUnread(ctx context.Context, taskID model.ID, email string) (int, error)
}

// ErrStopped is returned by actions once the engine has been stopped.
var ErrStopped = errors.New("sync engine stopped")

// Status is a snapshot of the engine's health.
type Status struct {
	Connection realtime.State
	Streaming  bool
	Polling    bool
	LastSync   time.Time
	Error      error
}

// Degraded reports whether the engine is relying on polling.
func (s Status) Degraded() bool {
	return !s.Streaming || s.Connection != realtime.Connected
}

// NoticeKind classifies a Notice.
type NoticeKind int

// Notice kinds.
const (
	NoticeSynced NoticeKind = iota
	NoticeAssigned
	NoticeComment
	NoticeError
	NoticeAuth
)

// Notice is something the user should be told about.
type Notice struct {
	Kind    NoticeKind
	TaskID  model.ID
	Message string
	Err     error
}

// Options configures an Engine.
type Options struct {
	PollInterval time.Duration
	Logger       *log.Logger

	// Journal, when set, records notifications for the user.
	Journal store.Journal

	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine orchestrates the task sources and owns the apply loop.
type Engine struct {
	api      API
	channel  *realtime.Channel
	session  *session.Session
	tasks    *taskstore.Store
	threads  *thread.Store
	journal  store.Journal
	logger   *log.Logger
	interval time.Duration
	now      func() time.Time

	updates chan Update
	notices chan Notice

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	mu         gosync.Mutex
	status     Status
	started    bool
	seeded     bool
	counting   bool
	pollCancel context.CancelFunc
	unwatch    func()
	focus      model.ID
	focusSub   *realtime.Subscription
}

// New creates an engine for the logged-in viewer of sess. channel may be
// nil, in which case the engine polls permanently.
func New(client API, channel *realtime.Channel, sess *session.Session, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "sync: ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		api:      client,
		channel:  channel,
		session:  sess,
		tasks:    taskstore.New(),
		threads:  thread.New(sess.Email(), client),
		journal:  opts.Journal,
		logger:   logger,
		interval: opts.PollInterval,
		now:      now,
		updates:  make(chan Update, 256),
		notices:  make(chan Notice, 32),
		ctx:      ctx,
		cancel:   cancel,
		status:   Status{Streaming: channel != nil},
	}
}

// Tasks returns the task store.
func (e *Engine) Tasks() *taskstore.Store { return e.tasks }

// Threads returns the comment thread store.
func (e *Engine) Threads() *thread.Store { return e.threads }

// Notices delivers user-facing notices. Notices are dropped when nobody
// is reading.
func (e *Engine) Notices() <-chan Notice { return e.notices }

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Start launches the apply loop and the task sources.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.applyLoop()
	}()

	if e.channel == nil {
		e.startPolling()
		return
	}

	stream := &StreamSource{Channel: e.channel, Logger: e.logger}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		stream.Run(e.ctx, e.emit)
	}()

	unwatch := e.channel.Watch(e.onState)
	e.mu.Lock()
	e.unwatch = unwatch
	e.mu.Unlock()

	e.channel.Connect()
	e.startPolling()
	if e.channel.State() == realtime.Connected {
		e.onState(realtime.Connected)
	}
}

// Stop ends every goroutine the engine started. The realtime channel is
// left to its owner.
func (e *Engine) Stop() {
	e.mu.Lock()
	unwatch := e.unwatch
	e.unwatch = nil
	sub := e.focusSub
	e.focusSub = nil
	e.cancel()
	e.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	e.wg.Wait()
}

// Refresh fetches a snapshot now, regardless of connection state.
func (e *Engine) Refresh() {
	e.goSafe(func() { fetchSnapshot(e.ctx, e.api, e.tasks, e.emit) })
}

// onState switches between the stream-only and polling strategies.
func (e *Engine) onState(s realtime.State) {
	e.mu.Lock()
	prev := e.status.Connection
	e.status.Connection = s
	e.mu.Unlock()

	if s == realtime.Connected {
		e.stopPolling()
		if prev != realtime.Connected {
			// Catch up on anything missed while disconnected.
			e.Refresh()
		}
		return
	}
	e.startPolling()
}

func (e *Engine) startPolling() {
	e.mu.Lock()
	if e.pollCancel != nil || e.ctx.Err() != nil || e.status.Connection == realtime.Connected {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.pollCancel = cancel
	e.status.Polling = true
	e.wg.Add(1)
	e.mu.Unlock()

	src := &PollSource{API: e.api, Store: e.tasks, Interval: e.interval}
	go func() {
		defer e.wg.Done()
		src.Run(ctx, e.emit)
	}()
}

func (e *Engine) stopPolling() {
	e.mu.Lock()
	cancel := e.pollCancel
	e.pollCancel = nil
	e.status.Polling = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// goSafe runs fn on a tracked goroutine unless the engine is stopping.
func (e *Engine) goSafe(fn func()) {
	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// emit queues u for the apply loop.
func (e *Engine) emit(u Update) {
	select {
	case e.updates <- u:
	case <-e.ctx.Done():
	}
}

// do runs fn on the apply loop and waits for it.
func (e *Engine) do(fn func()) error {
	done := make(chan struct{})
	select {
	case e.updates <- Update{fn: fn, done: done}:
	case <-e.ctx.Done():
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-e.ctx.Done():
		return ErrStopped
	}
}

func (e *Engine) applyLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case u := <-e.updates:
			e.apply(u)
		}
	}
}

func (e *Engine) apply(u Update) {
	switch {
	case u.fn != nil:
		u.fn()
		close(u.done)
	case u.snapshot:
		e.applySnapshot(u)
	case u.event != nil:
		e.applyEvent(*u.event)
	}
}

func (e *Engine) applySnapshot(u Update) {
	if u.err != nil {
		e.mu.Lock()
		e.status.Error = u.err
		e.mu.Unlock()

		e.logger.Printf("snapshot: %v", u.err)
		if api.IsAuthError(u.err) {
			e.notify(Notice{Kind: NoticeAuth, Message: "session rejected by the server, please log in again", Err: u.err})
		}
		return
	}

	e.mu.Lock()
	seeded := e.seeded
	e.seeded = true
	e.mu.Unlock()

	viewer := e.session.Email()
	var fresh []model.Task
	if seeded {
		for _, t := range u.tasks {
			if _, known := e.tasks.Get(t.ID); !known && !e.tasks.Deleted(t.ID) && sameEmail(t.AssigneeID, viewer) {
				fresh = append(fresh, t)
			}
		}
	}

	e.tasks.LoadSnapshotAt(u.mark, u.tasks)
	e.countUnread()

	for _, t := range fresh {
		e.journalize(model.NotifyTaskAssigned, t.ID, fmt.Sprintf("New task assigned: %s", t.Title))
	}

	e.mu.Lock()
	e.status.LastSync = e.now()
	e.status.Error = nil
	e.mu.Unlock()
	e.notify(Notice{Kind: NoticeSynced})
}

func (e *Engine) applyEvent(ev event.Event) {
	viewer := e.session.Email()

	switch {
	case ev.Kind.IsTask():
		before, existed := e.tasks.Get(ev.Task.ID)
		if !e.tasks.ApplyEvent(ev.Task) {
			return
		}
		e.journalTaskChange(ev, before, existed, viewer)

	case ev.Kind == event.CommentCreated:
		c := ev.Comment
		e.threads.AppendEvent(c)
		if !sameEmail(c.RecipientEmail, viewer) {
			return
		}

		e.mu.Lock()
		focused := e.focus == c.TaskID
		e.mu.Unlock()

		if focused {
			e.goSafe(func() { e.acknowledge(c.ID) })
			return
		}
		e.journalize(model.NotifyComment, c.TaskID, fmt.Sprintf("New comment from %s", c.AuthorEmail))

	case ev.Kind == event.UnreadCount:
		if sameEmail(ev.Unread.Email, viewer) {
			e.threads.SetServerUnread(ev.Unread.TaskID, ev.Unread.Count)
		}
	}
}

// journalTaskChange records notifications for task events that concern
// the viewer.
func (e *Engine) journalTaskChange(ev event.Event, before model.Task, existed bool, viewer string) {
	if ev.Kind == event.TaskDeleted {
		if existed && (sameEmail(before.AssigneeID, viewer) || sameEmail(before.CreatedByID, viewer)) {
			e.journalize(model.NotifyTaskDeleted, before.ID, fmt.Sprintf("Task deleted: %s", before.Title))
		}
		return
	}

	after, _ := e.tasks.Get(ev.Task.ID)
	if sameEmail(after.AssigneeID, viewer) && (!existed || !sameEmail(before.AssigneeID, viewer)) {
		e.journalize(model.NotifyTaskAssigned, after.ID, fmt.Sprintf("New task assigned: %s", after.Title))
		return
	}
	if existed && before.Status != after.Status && (sameEmail(after.AssigneeID, viewer) || sameEmail(after.CreatedByID, viewer)) {
		e.journalize(model.NotifyTaskUpdated, after.ID, fmt.Sprintf("%s is now %s", after.Title, after.Status))
	}
}

// countUnread refreshes the unread counts of the viewer's tasks whose
// threads have not been opened. Only one refresh runs at a time.
func (e *Engine) countUnread() {
	viewer := e.session.Email()
	if viewer == "" {
		return
	}
	var ids []model.ID
	for _, t := range e.tasks.GetAll() {
		if derive.VisibleTo(t, viewer) && !e.threads.Loaded(t.ID) {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	e.mu.Lock()
	if e.counting {
		e.mu.Unlock()
		return
	}
	e.counting = true
	e.mu.Unlock()

	e.goSafe(func() {
		defer func() {
			e.mu.Lock()
			e.counting = false
			e.mu.Unlock()
		}()
		for _, id := range ids {
			mark := e.threads.MarkUnread()
			ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
			n, err := e.api.CountUnread(ctx, id, viewer)
			cancel()
			if err != nil {
				if e.ctx.Err() != nil {
					return
				}
				e.logger.Printf("unread count of task %s: %v", id, err)
				continue
			}
			if err := e.do(func() { e.threads.SetServerUnreadAt(mark, id, n) }); err != nil {
				return
			}
		}
	})
}

func (e *Engine) acknowledge(commentID model.ID) {
	ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
	defer cancel()
	if err := e.threads.Acknowledge(ctx, commentID); err != nil {
		e.logger.Printf("read receipt for comment %s: %v", commentID, err)
	}
}

// journalize writes a notification and tells the UI about it.
func (e *Engine) journalize(kind model.NotificationKind, taskID model.ID, msg string) {
	noticeKind := NoticeAssigned
	if kind == model.NotifyComment {
		noticeKind = NoticeComment
	}
	e.notify(Notice{Kind: noticeKind, TaskID: taskID, Message: msg})

	if e.journal == nil {
		return
	}
	n := model.Notification{
		TaskID:    taskID,
		Kind:      kind,
		Message:   msg,
		CreatedAt: e.now(),
	}
	if err := e.journal.CreateNotification(e.ctx, n); err != nil {
		e.logger.Printf("journal: %v", err)
	}
}

// notify sends a notice without blocking.
func (e *Engine) notify(n Notice) {
	select {
	case e.notices <- n:
	default:
	}
}

func (e *Engine) fail(err error) {
	e.logger.Printf("%v", err)
	kind := NoticeError
	if api.IsAuthError(err) {
		kind = NoticeAuth
	}
	e.notify(Notice{Kind: kind, Message: api.UserMessage(err), Err: err})
}
