// Package taskstore holds the client's reconciled view of the task list.
//
// State is the fold, in arrival order, of the latest snapshot and every
// stream event applied after it. Tombstones dominate later updates, and
// once an event has been applied a snapshot can only add tasks, never
// override them.
package taskstore

import (
	"sync"

	"github.com/nhle/taskpulse/internal/model"
)

// Op describes what happened to a task.
type Op int

// Change operations.
const (
	OpUpsert Op = iota + 1
	OpDelete
	OpReset
)

// Change is delivered to subscribers after every mutation. OpReset means
// a snapshot was loaded; IDs lists the affected tasks.
type Change struct {
	Op  Op
	IDs []model.ID
}

// Mark is a position in the store's event sequence.
type Mark uint64

// Store is a concurrency-safe map of tasks keyed by id.
type Store struct {
	mu    sync.RWMutex
	tasks map[model.ID]*entry
	order []model.ID

	// seq counts applied events. snapSeq is the value of seq when the
	// current snapshot generation began.
	seq     uint64
	snapSeq uint64

	// tombstones are ids deleted since the last replacing snapshot.
	tombstones map[model.ID]struct{}

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

type entry struct {
	task model.Task
	pos  int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tasks:      make(map[model.ID]*entry),
		tombstones: make(map[model.ID]struct{}),
		subs:       make(map[int]func(Change)),
	}
}

// Mark captures the current event sequence. Take it before starting a
// snapshot fetch and pass it to LoadSnapshotAt.
func (s *Store) Mark() Mark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Mark(s.seq)
}

// LoadSnapshot loads tasks as of the last snapshot generation: it
// replaces the whole map when no event has been applied since the
// previous snapshot, otherwise it only adds ids the store does not hold.
func (s *Store) LoadSnapshot(tasks []model.Task) {
	s.mu.RLock()
	mark := Mark(s.snapSeq)
	s.mu.RUnlock()
	s.LoadSnapshotAt(mark, tasks)
}

// LoadSnapshotAt loads a snapshot whose fetch started at mark. If no
// event was applied after mark the snapshot replaces the store. Otherwise
// it is a floor: only ids that are neither present nor tombstoned are
// added. It reports whether the snapshot replaced the store.
func (s *Store) LoadSnapshotAt(mark Mark, tasks []model.Task) bool {
	s.mu.Lock()
	replace := uint64(mark) >= s.seq

	var ids []model.ID
	if replace {
		s.tasks = make(map[model.ID]*entry, len(tasks))
		s.order = s.order[:0]
		s.tombstones = make(map[model.ID]struct{})
		for _, t := range tasks {
			if t.ID.IsZero() {
				continue
			}
			s.putLocked(t)
			ids = append(ids, t.ID)
		}
		s.snapSeq = s.seq
	} else {
		for _, t := range tasks {
			if t.ID.IsZero() {
				continue
			}
			if _, ok := s.tasks[t.ID]; ok {
				continue
			}
			if _, dead := s.tombstones[t.ID]; dead {
				continue
			}
			s.putLocked(t)
			ids = append(ids, t.ID)
		}
	}
	s.mu.Unlock()

	if replace {
		s.notify(Change{Op: OpReset, IDs: ids})
	} else if len(ids) > 0 {
		s.notify(Change{Op: OpUpsert, IDs: ids})
	}
	return replace
}

// ApplyEvent folds a stream patch into the store. A tombstone removes the
// id and blocks it until a replacing snapshot; any other patch merges
// into the existing task or inserts a new one. It reports whether the
// store changed.
func (s *Store) ApplyEvent(p model.TaskPatch) bool {
	if p.ID.IsZero() {
		return false
	}

	s.mu.Lock()
	s.seq++

	if p.Deleted {
		s.tombstones[p.ID] = struct{}{}
		_, existed := s.tasks[p.ID]
		if existed {
			s.removeLocked(p.ID)
		}
		s.mu.Unlock()
		if existed {
			s.notify(Change{Op: OpDelete, IDs: []model.ID{p.ID}})
		}
		return existed
	}

	if _, dead := s.tombstones[p.ID]; dead {
		s.mu.Unlock()
		return false
	}

	if e, ok := s.tasks[p.ID]; ok {
		p.ApplyTo(&e.task)
	} else {
		s.putLocked(p.Task())
	}
	s.mu.Unlock()

	s.notify(Change{Op: OpUpsert, IDs: []model.ID{p.ID}})
	return true
}

// GetAll returns every task in the order it was first seen.
func (s *Store) GetAll() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].task)
	}
	return out
}

// Get returns the task with id.
func (s *Store) Get(id model.ID) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return e.task, true
}

// Len returns the number of tasks held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Deleted reports whether id was tombstoned since the last replacing
// snapshot.
func (s *Store) Deleted(id model.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, dead := s.tombstones[id]
	return dead
}

// Subscribe registers fn to be called after every mutation. Calls happen
// on the mutating goroutine, outside the store lock. The returned func
// removes fn.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Store) putLocked(t model.Task) {
	if e, ok := s.tasks[t.ID]; ok {
		e.task = t
		return
	}
	s.tasks[t.ID] = &entry{task: t, pos: len(s.order)}
	s.order = append(s.order, t.ID)
}

func (s *Store) removeLocked(id model.ID) {
	e := s.tasks[id]
	delete(s.tasks, id)

	s.order = append(s.order[:e.pos], s.order[e.pos+1:]...)
	for i := e.pos; i < len(s.order); i++ {
		s.tasks[s.order[i]].pos = i
	}
}
