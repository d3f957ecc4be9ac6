package thread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/model"
)

const viewer = "dev@example.com"

var base = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func comment(id, task string, at time.Duration, content string) model.Comment {
	return model.Comment{
		ID:             model.ID(id),
		TaskID:         model.ID(task),
		AuthorEmail:    "boss@example.com",
		RecipientEmail: viewer,
		Content:        content,
		CreatedAt:      model.Timestamp{Time: base.Add(at)},
	}
}

type fakeReceipts struct {
	err   error
	calls []model.ID
	email string
}

func (f *fakeReceipts) MarkCommentRead(_ context.Context, id model.ID, email string) error {
	f.calls = append(f.calls, id)
	f.email = email
	return f.err
}

func contents(cs []model.Comment) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Content)
	}
	return out
}

func TestAppendSameIDKeepsLatest(t *testing.T) {
	s := New(viewer, nil)

	s.AppendEvent(comment("1", "10", 0, "first draft"))
	s.AppendEvent(comment("1", "10", 0, "edited"))

	thread := s.GetThread("10")
	require.Len(t, thread, 1)
	assert.Equal(t, "edited", thread[0].Content)
}

func TestThreadOrderedByCreatedThenID(t *testing.T) {
	s := New(viewer, nil)
	s.LoadHistory("10", []model.Comment{
		comment("3", "10", 2*time.Minute, "c"),
		comment("10", "10", time.Minute, "b2"),
		comment("9", "10", time.Minute, "b1"),
	})
	s.AppendEvent(comment("1", "10", 0, "a"))

	assert.Equal(t, []string{"a", "b1", "b2", "c"}, contents(s.GetThread("10")))
	assert.Empty(t, s.GetThread("99"))
}

func TestHistoryMergesWithStreamedComments(t *testing.T) {
	s := New(viewer, nil)
	s.AppendEvent(comment("2", "10", time.Minute, "streamed"))
	s.LoadHistory("10", []model.Comment{comment("1", "10", 0, "old")})

	assert.Equal(t, []string{"old", "streamed"}, contents(s.GetThread("10")))
	assert.True(t, s.Loaded("10"))
	assert.False(t, s.Loaded("11"))
}

func TestUnreadUsesServerCountUntilLoaded(t *testing.T) {
	s := New(viewer, nil)
	s.SetServerUnread("10", 4)
	assert.Equal(t, 4, s.Unread("10"))

	read := comment("2", "10", time.Minute, "read")
	read.IsReadByRecipient = true
	notMine := comment("3", "10", 2*time.Minute, "for boss")
	notMine.RecipientEmail = "boss@example.com"

	s.LoadHistory("10", []model.Comment{comment("1", "10", 0, "unread"), read, notMine})
	assert.Equal(t, 1, s.Unread("10"))

	s.MarkReadLocally("1")
	assert.Zero(t, s.Unread("10"))
}

func TestUnreadCountsStreamedCommentsBeforeLoad(t *testing.T) {
	s := New(viewer, nil)
	s.AppendEvent(comment("1", "10", 0, "first"))
	s.AppendEvent(comment("2", "10", time.Minute, "second"))
	assert.Equal(t, 2, s.Unread("10"))

	s.AppendEvent(comment("2", "10", time.Minute, "second, edited"))
	notMine := comment("3", "10", 2*time.Minute, "for boss")
	notMine.RecipientEmail = "boss@example.com"
	s.AppendEvent(notMine)
	assert.Equal(t, 2, s.Unread("10"), "edits and comments for others do not count")

	s.SetServerUnread("10", 2)
	assert.Equal(t, 2, s.Unread("10"), "the server count covers what was streamed")

	s.AppendEvent(comment("4", "10", 3*time.Minute, "third"))
	assert.Equal(t, 3, s.Unread("10"))

	s.Remove("4")
	assert.Equal(t, 2, s.Unread("10"))

	s.AppendEvent(comment("5", "10", 4*time.Minute, "fourth"))
	s.MarkReadLocally("5")
	assert.Equal(t, 2, s.Unread("10"))
}

func TestServerCountKeepsLaterStreamedComments(t *testing.T) {
	s := New(viewer, nil)
	s.AppendEvent(comment("1", "10", 0, "before the request"))
	mark := s.MarkUnread()
	s.AppendEvent(comment("2", "10", time.Minute, "while in flight"))

	s.SetServerUnreadAt(mark, "10", 1)
	assert.Equal(t, 2, s.Unread("10"))

	s.LoadHistory("10", []model.Comment{comment("1", "10", 0, "before the request")})
	s.MarkThreadReadLocally("10")
	s.SetServerUnreadAt(s.MarkUnread(), "10", 7)
	assert.Zero(t, s.Unread("10"), "counts are ignored once the thread is loaded")
}

func TestAcknowledgeConfirmsReceipt(t *testing.T) {
	r := &fakeReceipts{}
	s := New(viewer, r)
	s.LoadHistory("10", []model.Comment{comment("1", "10", 0, "hi")})

	require.NoError(t, s.Acknowledge(context.Background(), "1"))
	assert.Equal(t, []model.ID{"1"}, r.calls)
	assert.Equal(t, viewer, r.email)

	c, ok := s.Get("1")
	require.True(t, ok)
	assert.True(t, c.IsReadByRecipient)

	// A republished copy from the broker does not undo the local mark.
	s.AppendEvent(comment("1", "10", 0, "hi"))
	assert.Zero(t, s.Unread("10"))
}

func TestAcknowledgeRevertsOnFailure(t *testing.T) {
	r := &fakeReceipts{err: errors.New("503")}
	s := New(viewer, r)
	s.LoadHistory("10", []model.Comment{comment("1", "10", 0, "hi")})

	assert.Error(t, s.Acknowledge(context.Background(), "1"))
	assert.Equal(t, 1, s.Unread("10"), "optimistic mark is rolled back")

	assert.NoError(t, s.Acknowledge(context.Background(), "missing"))
	assert.Len(t, r.calls, 1, "unknown comments are not confirmed")
}

func TestMarkThreadReadLocally(t *testing.T) {
	s := New(viewer, nil)
	s.SetServerUnread("10", 2)
	s.LoadHistory("10", []model.Comment{
		comment("1", "10", 0, "a"),
		comment("2", "10", time.Minute, "b"),
	})
	require.Equal(t, 2, s.Unread("10"))

	s.MarkThreadReadLocally("10")
	assert.Zero(t, s.Unread("10"))
}

func TestRemoveAndSubscribe(t *testing.T) {
	s := New(viewer, nil)
	var changed []model.ID
	cancel := s.Subscribe(func(id model.ID) { changed = append(changed, id) })
	defer cancel()

	s.AppendEvent(comment("1", "10", 0, "a"))
	assert.True(t, s.Remove("1"))
	assert.False(t, s.Remove("1"))
	assert.Empty(t, s.GetThread("10"))
	assert.Equal(t, []model.ID{"10", "10"}, changed)

	assert.False(t, s.AppendEvent(model.Comment{ID: "5"}), "comments need a task")
}

func TestEditable(t *testing.T) {
	s := New("boss@example.com", nil)
	s.AppendEvent(comment("1", "10", 0, "a"))

	assert.True(t, s.Editable("1", model.RoleAdmin, model.StatusPending, base.Add(4*time.Minute)))
	assert.False(t, s.Editable("1", model.RoleAdmin, model.StatusPending, base.Add(6*time.Minute)))
	assert.False(t, s.Editable("2", model.RoleAdmin, model.StatusPending, base))

	other := New(viewer, nil)
	other.AppendEvent(comment("1", "10", 0, "a"))
	assert.False(t, other.Editable("1", model.RoleEmployee, model.StatusPending, base), "only the author")
}
