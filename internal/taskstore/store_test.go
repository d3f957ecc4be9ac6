package taskstore

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/model"
)

func task(id string, status model.TaskStatus) model.Task {
	return model.Task{ID: model.ID(id), Title: "task " + id, Status: status}
}

func title(s string) *string { return &s }

func TestSnapshotThenStreamThenStaleSnapshot(t *testing.T) {
	s := New()

	s.LoadSnapshot([]model.Task{task("1", model.StatusPending)})
	s.ApplyEvent(model.StatusPatch("1", model.StatusOngoing))
	s.LoadSnapshot([]model.Task{task("1", model.StatusPending)})

	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, model.StatusOngoing, got.Status)
	assert.Equal(t, 1, s.Len())
}

func TestStaleSnapshotWithMark(t *testing.T) {
	s := New()
	s.LoadSnapshotAt(s.Mark(), []model.Task{task("1", model.StatusPending)})

	mark := s.Mark()
	s.ApplyEvent(model.StatusPatch("1", model.StatusOngoing))
	replaced := s.LoadSnapshotAt(mark, []model.Task{task("1", model.StatusPending), task("2", model.StatusPending)})

	assert.False(t, replaced)
	got, _ := s.Get("1")
	assert.Equal(t, model.StatusOngoing, got.Status)
	_, ok := s.Get("2")
	assert.True(t, ok, "snapshot still adds unseen ids")
}

func TestFreshSnapshotReplaces(t *testing.T) {
	s := New()
	s.LoadSnapshot([]model.Task{task("1", model.StatusPending), task("2", model.StatusPending)})
	s.ApplyEvent(model.StatusPatch("1", model.StatusOngoing))

	mark := s.Mark()
	replaced := s.LoadSnapshotAt(mark, []model.Task{task("1", model.StatusCompleted)})

	assert.True(t, replaced)
	got, _ := s.Get("1")
	assert.Equal(t, model.StatusCompleted, got.Status)
	_, ok := s.Get("2")
	assert.False(t, ok, "ids omitted by a replacing snapshot are dropped")
}

func TestTombstoneDominatesLaterUpdates(t *testing.T) {
	s := New()
	s.LoadSnapshot([]model.Task{task("1", model.StatusPending)})

	assert.True(t, s.ApplyEvent(model.Tombstone("1")))
	assert.False(t, s.ApplyEvent(model.TaskPatch{ID: "1", Title: title("zombie")}))
	assert.False(t, s.ApplyEvent(model.PatchOf(task("1", model.StatusOngoing))))

	_, ok := s.Get("1")
	assert.False(t, ok)
	assert.True(t, s.Deleted("1"))

	s.LoadSnapshot([]model.Task{task("1", model.StatusPending)})
	_, ok = s.Get("1")
	assert.False(t, ok, "a merging snapshot does not resurrect a tombstoned id")
}

func TestReplacingSnapshotReintroducesTombstonedID(t *testing.T) {
	s := New()
	s.ApplyEvent(model.Tombstone("1"))

	mark := s.Mark()
	s.LoadSnapshotAt(mark, []model.Task{task("1", model.StatusPending)})

	_, ok := s.Get("1")
	assert.True(t, ok)
	assert.False(t, s.Deleted("1"))
	assert.True(t, s.ApplyEvent(model.TaskPatch{ID: "1", Title: title("alive")}))
}

func TestPartialUpdatesMerge(t *testing.T) {
	s := New()
	done := model.TaskStatus("DONE")

	s.ApplyEvent(model.TaskPatch{ID: "X", Status: &done})
	s.ApplyEvent(model.TaskPatch{ID: "X", Title: title("new")})

	all := s.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, done, all[0].Status)
	assert.Equal(t, "new", all[0].Title)
}

func TestUnknownIDInsertedAndOrderKept(t *testing.T) {
	s := New()
	s.LoadSnapshot([]model.Task{task("3", model.StatusPending), task("1", model.StatusPending)})
	s.ApplyEvent(model.PatchOf(task("2", model.StatusPending)))
	s.ApplyEvent(model.TaskPatch{ID: "3", Title: title("renamed")})
	s.ApplyEvent(model.Tombstone("1"))

	var ids []model.ID
	for _, tk := range s.GetAll() {
		ids = append(ids, tk.ID)
	}
	assert.Equal(t, []model.ID{"3", "2"}, ids)
}

func TestNoDuplicateIDsUnderRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := New()

	for i := 0; i < 2000; i++ {
		id := model.ID(fmt.Sprint(rng.Intn(8)))
		switch rng.Intn(5) {
		case 0:
			s.ApplyEvent(model.Tombstone(id))
		case 1:
			n := rng.Intn(5)
			snap := make([]model.Task, 0, n)
			for j := 0; j < n; j++ {
				snap = append(snap, task(fmt.Sprint(rng.Intn(8)), model.StatusPending))
			}
			if rng.Intn(2) == 0 {
				s.LoadSnapshot(snap)
			} else {
				s.LoadSnapshotAt(s.Mark(), snap)
			}
		default:
			s.ApplyEvent(model.TaskPatch{ID: id, Title: title(fmt.Sprint(i))})
		}

		seen := make(map[model.ID]bool)
		for _, tk := range s.GetAll() {
			require.False(t, seen[tk.ID], "duplicate id %s after step %d", tk.ID, i)
			seen[tk.ID] = true
		}
		require.Equal(t, len(seen), s.Len())
	}
}

func TestSubscribersSeeChanges(t *testing.T) {
	s := New()
	var changes []Change
	cancel := s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.LoadSnapshot([]model.Task{task("1", model.StatusPending)})
	s.ApplyEvent(model.StatusPatch("1", model.StatusCompleted))
	s.ApplyEvent(model.Tombstone("1"))
	s.ApplyEvent(model.Tombstone("1"))

	require.Len(t, changes, 3)
	assert.Equal(t, OpReset, changes[0].Op)
	assert.Equal(t, OpUpsert, changes[1].Op)
	assert.Equal(t, Change{Op: OpDelete, IDs: []model.ID{"1"}}, changes[2])

	cancel()
	s.ApplyEvent(model.PatchOf(task("2", model.StatusPending)))
	assert.Len(t, changes, 3)
}

func TestEmptyIDIgnored(t *testing.T) {
	s := New()
	assert.False(t, s.ApplyEvent(model.TaskPatch{Title: title("no id")}))
	s.LoadSnapshot([]model.Task{{Title: "no id"}})
	assert.Zero(t, s.Len())
}
