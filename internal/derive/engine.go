package derive

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/realtime"
	"github.com/nhle/taskpulse/internal/taskstore"
)

// TaskSource is the task store as seen by the engine.
type TaskSource interface {
	GetAll() []model.Task
	Subscribe(fn func(taskstore.Change)) (cancel func())
}

// UnreadSource is the comment thread store as seen by the engine.
type UnreadSource interface {
	Unread(taskID model.ID) int
	Subscribe(fn func(taskID model.ID)) (cancel func())
}

// Row is one task with its derived display state.
type Row struct {
	Task       model.Task
	Urgency    Urgency
	Unread     int
	IsNew      bool
	CanComment bool
}

// Board is an immutable snapshot of everything the task list shows.
type Board struct {
	Rows       []Row
	Viewer     string
	Query      string
	Now        time.Time
	Connection realtime.State
	Version    uint64
}

// Row returns the row for id.
func (b Board) Row(id model.ID) (Row, bool) {
	for _, r := range b.Rows {
		if r.Task.ID == id {
			return r, true
		}
	}
	return Row{}, false
}

// Counts returns how many rows fall in each urgency bucket.
func (b Board) Counts() map[Urgency]int {
	out := make(map[Urgency]int)
	for _, r := range b.Rows {
		out[r.Urgency]++
	}
	return out
}

// Viewer identifies who the board is computed for.
type Viewer struct {
	Email string
	Role  model.Role

	// ShowAll lists every task instead of only those the viewer created
	// or is assigned.
	ShowAll bool
}

// Build derives a board from tasks at now. unread may be nil.
func Build(tasks []model.Task, unread func(model.ID) int, v Viewer, query string, now time.Time) Board {
	q := strings.ToLower(strings.TrimSpace(query))
	rows := make([]Row, 0, len(tasks))

	for _, t := range tasks {
		if !v.ShowAll && !VisibleTo(t, v.Email) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.Title), q) {
			continue
		}
		row := Row{
			Task:       t,
			Urgency:    ComputeUrgency(t.DueDate, t.Status, now),
			IsNew:      t.IsNew && strings.EqualFold(t.AssigneeID, v.Email),
			CanComment: CommentingAllowed(v.Role, t.Status),
		}
		if unread != nil {
			row.Unread = unread(t.ID)
		}
		rows = append(rows, row)
	}

	return Board{Rows: rows, Viewer: v.Email, Query: query, Now: now}
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Viewer Viewer

	// Tick is how often the board is rebuilt with no store change, so
	// urgency buckets roll over at midnight. Defaults to 30s.
	Tick time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	// Connection reports the realtime channel state stamped on each
	// board. Nil means Disconnected.
	Connection func() realtime.State
}

// Engine keeps a Board current. Store changes are coalesced: a burst of
// mutations yields one rebuild.
type Engine struct {
	tasks  TaskSource
	unread UnreadSource
	opts   EngineOptions

	mu      sync.RWMutex
	board   Board
	query   string
	version uint64

	subMu  sync.Mutex
	subs   map[int]func(Board)
	nextID int

	dirty chan struct{}
}

// NewEngine creates an engine over the given stores. unread may be nil.
func NewEngine(tasks TaskSource, unread UnreadSource, opts EngineOptions) *Engine {
	if opts.Tick <= 0 {
		opts.Tick = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		tasks:  tasks,
		unread: unread,
		opts:   opts,
		subs:   make(map[int]func(Board)),
		dirty:  make(chan struct{}, 1),
	}
}

// Run rebuilds the board on every store change and on each tick until ctx
// is done.
func (e *Engine) Run(ctx context.Context) {
	cancelTasks := e.tasks.Subscribe(func(taskstore.Change) { e.markDirty() })
	defer cancelTasks()
	if e.unread != nil {
		cancelUnread := e.unread.Subscribe(func(model.ID) { e.markDirty() })
		defer cancelUnread()
	}

	ticker := time.NewTicker(e.opts.Tick)
	defer ticker.Stop()

	e.Recompute()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.dirty:
			e.Recompute()
		case <-ticker.C:
			e.Recompute()
		}
	}
}

func (e *Engine) markDirty() {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

// SetQuery filters rows by a case-insensitive title substring.
func (e *Engine) SetQuery(q string) {
	e.mu.Lock()
	e.query = q
	e.mu.Unlock()
	e.markDirty()
}

// SetShowAll switches between every task and only the viewer's own.
func (e *Engine) SetShowAll(all bool) {
	e.mu.Lock()
	e.opts.Viewer.ShowAll = all
	e.mu.Unlock()
	e.markDirty()
}

// Invalidate schedules a rebuild, e.g. after the connection state changed.
func (e *Engine) Invalidate() {
	e.markDirty()
}

// Board returns the latest snapshot.
func (e *Engine) Board() Board {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.board
}

// Recompute rebuilds the board now, publishes it and returns it.
func (e *Engine) Recompute() Board {
	e.mu.RLock()
	query, viewer := e.query, e.opts.Viewer
	e.mu.RUnlock()

	var unread func(model.ID) int
	if e.unread != nil {
		unread = e.unread.Unread
	}
	b := Build(e.tasks.GetAll(), unread, viewer, query, e.opts.Now())
	if e.opts.Connection != nil {
		b.Connection = e.opts.Connection()
	}

	e.mu.Lock()
	e.version++
	b.Version = e.version
	e.board = b
	e.mu.Unlock()

	e.subMu.Lock()
	fns := make([]func(Board), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(b)
	}
	return b
}

// Subscribe registers fn to receive every new board. The returned func
// removes it.
func (e *Engine) Subscribe(fn func(Board)) (cancel func()) {
	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}
