// Package thread keeps the comment threads of tasks, de-duplicated by id
// and ordered by creation time, together with per-viewer unread state.
package thread

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/model"
)

// Receipts confirms that a viewer has read a comment.
type Receipts interface {
	MarkCommentRead(ctx context.Context, id model.ID, userEmail string) error
}

type thread struct {
	loaded   bool
	comments map[model.ID]model.Comment
}

// Store holds comment threads for one viewer.
type Store struct {
	viewer   string
	receipts Receipts

	mu           sync.RWMutex
	threads      map[model.ID]*thread
	owner        map[model.ID]model.ID
	acked        map[model.ID]bool
	serverUnread map[model.ID]int
	// streamed holds comments addressed to the viewer that reached an
	// unloaded thread after the last server count, with their arrival
	// sequence.
	streamed map[model.ID]map[model.ID]uint64
	seq      uint64

	subMu  sync.Mutex
	subs   map[int]func(taskID model.ID)
	nextID int
}

// New returns an empty store for viewer. receipts may be nil, in which
// case Acknowledge only marks locally.
func New(viewer string, receipts Receipts) *Store {
	return &Store{
		viewer:       viewer,
		receipts:     receipts,
		threads:      make(map[model.ID]*thread),
		owner:        make(map[model.ID]model.ID),
		acked:        make(map[model.ID]bool),
		serverUnread: make(map[model.ID]int),
		streamed:     make(map[model.ID]map[model.ID]uint64),
		subs:         make(map[int]func(model.ID)),
	}
}

// Viewer returns the email unread state is computed for.
func (s *Store) Viewer() string { return s.viewer }

func (s *Store) threadLocked(taskID model.ID) *thread {
	th, ok := s.threads[taskID]
	if !ok {
		th = &thread{comments: make(map[model.ID]model.Comment)}
		s.threads[taskID] = th
	}
	return th
}

func (s *Store) putLocked(c model.Comment) {
	if prev, ok := s.owner[c.ID]; ok && prev != c.TaskID {
		delete(s.threadLocked(prev).comments, c.ID)
	}
	s.threadLocked(c.TaskID).comments[c.ID] = c
	s.owner[c.ID] = c.TaskID
}

// LoadHistory merges a fetched thread by id and marks it loaded.
func (s *Store) LoadHistory(taskID model.ID, comments []model.Comment) {
	s.mu.Lock()
	th := s.threadLocked(taskID)
	th.loaded = true
	delete(s.streamed, taskID)
	for _, c := range comments {
		if c.ID.IsZero() {
			continue
		}
		if c.TaskID.IsZero() {
			c.TaskID = taskID
		}
		s.putLocked(c)
	}
	s.mu.Unlock()

	s.notify(taskID)
}

// AppendEvent inserts c, or replaces the stored comment with the same id.
func (s *Store) AppendEvent(c model.Comment) bool {
	if c.ID.IsZero() || c.TaskID.IsZero() {
		return false
	}
	s.mu.Lock()
	th := s.threadLocked(c.TaskID)
	if _, known := th.comments[c.ID]; !known && !th.loaded && s.addressedToViewer(c) && !c.IsReadByRecipient {
		if s.streamed[c.TaskID] == nil {
			s.streamed[c.TaskID] = make(map[model.ID]uint64)
		}
		s.seq++
		s.streamed[c.TaskID][c.ID] = s.seq
	}
	s.putLocked(c)
	s.mu.Unlock()

	s.notify(c.TaskID)
	return true
}

// Remove drops a comment after a confirmed delete.
func (s *Store) Remove(commentID model.ID) bool {
	s.mu.Lock()
	taskID, ok := s.owner[commentID]
	if ok {
		delete(s.threadLocked(taskID).comments, commentID)
		delete(s.owner, commentID)
		delete(s.acked, commentID)
		delete(s.streamed[taskID], commentID)
	}
	s.mu.Unlock()

	if ok {
		s.notify(taskID)
	}
	return ok
}

// Get returns the comment with id.
func (s *Store) Get(commentID model.ID) (model.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	taskID, ok := s.owner[commentID]
	if !ok {
		return model.Comment{}, false
	}
	return s.viewLocked(s.threads[taskID].comments[commentID]), true
}

// GetThread returns the comments of taskID ordered by creation time, ties
// broken by id.
func (s *Store) GetThread(taskID model.ID) []model.Comment {
	s.mu.RLock()
	th, ok := s.threads[taskID]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	out := make([]model.Comment, 0, len(th.comments))
	for _, c := range th.comments {
		out = append(out, s.viewLocked(c))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Created(), out[j].Created()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return lessID(out[i].ID, out[j].ID)
	})
	return out
}

// Editable reports whether the viewer, holding role, may still edit or
// delete the comment on a task in status.
func (s *Store) Editable(commentID model.ID, role model.Role, status model.TaskStatus, now time.Time) bool {
	c, ok := s.Get(commentID)
	if !ok {
		return false
	}
	return derive.CommentEditable(c, s.viewer, role, status, now)
}

// Loaded reports whether the history of taskID has been fetched.
func (s *Store) Loaded(taskID model.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.threads[taskID]
	return ok && th.loaded
}

// viewLocked overlays local read marks.
func (s *Store) viewLocked(c model.Comment) model.Comment {
	if s.acked[c.ID] {
		c.IsReadByRecipient = true
	}
	return c
}

// MarkReadLocally marks a comment read without telling the server.
func (s *Store) MarkReadLocally(commentID model.ID) bool {
	s.mu.Lock()
	taskID, ok := s.owner[commentID]
	if ok {
		s.acked[commentID] = true
	}
	s.mu.Unlock()

	if ok {
		s.notify(taskID)
	}
	return ok
}

func (s *Store) unmarkRead(commentID model.ID) {
	s.mu.Lock()
	taskID, ok := s.owner[commentID]
	delete(s.acked, commentID)
	s.mu.Unlock()

	if ok {
		s.notify(taskID)
	}
}

// Acknowledge marks a comment read locally and confirms it with the
// read-receipt endpoint. If the confirmation fails the local mark is
// reverted so a later view retries. It blocks for the round trip; callers
// that must not wait run it on its own goroutine.
func (s *Store) Acknowledge(ctx context.Context, commentID model.ID) error {
	if !s.MarkReadLocally(commentID) || s.receipts == nil {
		return nil
	}
	if err := s.receipts.MarkCommentRead(ctx, commentID, s.viewer); err != nil {
		s.unmarkRead(commentID)
		return err
	}
	return nil
}

// MarkThreadReadLocally marks every comment of taskID addressed to the
// viewer as read.
func (s *Store) MarkThreadReadLocally(taskID model.ID) {
	s.mu.Lock()
	if th, ok := s.threads[taskID]; ok {
		for id, c := range th.comments {
			if s.addressedToViewer(c) {
				s.acked[id] = true
			}
		}
	}
	s.serverUnread[taskID] = 0
	delete(s.streamed, taskID)
	s.mu.Unlock()

	s.notify(taskID)
}

// SetServerUnread records the unread count pushed by the server. The
// count covers every comment streamed before it, so those stop adding to
// it.
func (s *Store) SetServerUnread(taskID model.ID, n int) {
	s.mu.Lock()
	s.serverUnread[taskID] = n
	delete(s.streamed, taskID)
	s.mu.Unlock()

	s.notify(taskID)
}

// UnreadMark captures the streamed-comment sequence before an unread
// count is requested.
type UnreadMark uint64

// MarkUnread returns the current streamed-comment sequence.
func (s *Store) MarkUnread() UnreadMark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return UnreadMark(s.seq)
}

// SetServerUnreadAt records a count fetched after mark was taken. Only
// comments streamed up to mark are treated as covered by it; later ones
// keep adding to the count. It is a no-op once the thread is loaded.
func (s *Store) SetServerUnreadAt(mark UnreadMark, taskID model.ID, n int) {
	s.mu.Lock()
	if th, ok := s.threads[taskID]; ok && th.loaded {
		s.mu.Unlock()
		return
	}
	s.serverUnread[taskID] = n
	for id, seq := range s.streamed[taskID] {
		if seq <= uint64(mark) {
			delete(s.streamed[taskID], id)
		}
	}
	s.mu.Unlock()

	s.notify(taskID)
}

// Unread returns how many comments on taskID are addressed to the viewer
// and not yet read. Before the thread is loaded this is the last server
// count plus the unread comments streamed in since.
func (s *Store) Unread(taskID model.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.threads[taskID]
	if !ok {
		return s.serverUnread[taskID]
	}
	if !th.loaded {
		n := s.serverUnread[taskID]
		for id := range s.streamed[taskID] {
			if c, ok := th.comments[id]; ok && !s.viewLocked(c).IsReadByRecipient {
				n++
			}
		}
		return n
	}
	n := 0
	for _, c := range th.comments {
		if s.addressedToViewer(c) && !s.viewLocked(c).IsReadByRecipient {
			n++
		}
	}
	return n
}

func (s *Store) addressedToViewer(c model.Comment) bool {
	return s.viewer != "" && strings.EqualFold(c.RecipientEmail, s.viewer)
}

// Subscribe registers fn to be called with the task id of every thread
// that changes. The returned func removes it.
func (s *Store) Subscribe(fn func(taskID model.ID)) (cancel func()) {
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

func (s *Store) notify(taskID model.ID) {
	s.subMu.Lock()
	fns := make([]func(model.ID), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(taskID)
	}
}

// lessID orders numeric ids numerically and anything else lexically.
func lessID(a, b model.ID) bool {
	ai, aerr := strconv.ParseInt(string(a), 10, 64)
	bi, berr := strconv.ParseInt(string(b), 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
