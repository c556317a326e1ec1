package undo_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/undo"
	"taskdeck/models"
	"taskdeck/store"
)

func setupManager(t *testing.T, opts undo.Options) (*undo.Manager, *store.FileStore, *undo.FileHistoryStore) {
	t.Helper()

	fs := afero.NewMemMapFs()
	path := filepath.Join("deck", "tasks.json")
	st, err := store.New(fs, path, store.FormatJSON)
	require.NoError(t, err)

	hist := undo.NewFileHistoryStore(fs, path+".undo.json")
	return undo.New(st, hist, opts, nil), st, hist
}

func newTask(t *testing.T, title string) models.Task {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	return models.Task{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// addTask performs the insertion and records it, the way a mutation
// path does: mutate first, record second.
func addTask(t *testing.T, m *undo.Manager, st *store.FileStore, title string) models.Task {
	t.Helper()
	task := newTask(t, title)
	idx := len(st.Tasks())
	require.NoError(t, st.InsertTaskAt(task, idx))
	require.NoError(t, m.RecordCommand(undo.NewAdd(task, idx)))
	return task
}

func TestUndoRedoRoundTrip(t *testing.T) {
	m, st, _ := setupManager(t, undo.Options{})

	for _, title := range []string{"one", "two", "three"} {
		addTask(t, m, st, title)
	}
	wantSum, err := st.Checksum()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		desc, err := m.Undo()
		require.NoError(t, err)
		assert.NotEmpty(t, desc)
	}
	assert.Empty(t, st.Tasks(), "all adds should be undone")

	for i := 0; i < 3; i++ {
		desc, err := m.Redo()
		require.NoError(t, err)
		assert.NotEmpty(t, desc)
	}
	gotSum, err := st.Checksum()
	require.NoError(t, err)
	assert.Equal(t, wantSum, gotSum, "redo should restore the exact pre-undo state")
}

func TestUndoEmptyStackIsNotAnError(t *testing.T) {
	m, st, _ := setupManager(t, undo.Options{})

	before, err := st.Checksum()
	require.NoError(t, err)

	desc, err := m.Undo()
	require.NoError(t, err)
	assert.Empty(t, desc)

	after, err := st.Checksum()
	require.NoError(t, err)
	assert.Equal(t, before, after, "empty undo must not mutate the store")
}

func TestRecordClearsRedoStack(t *testing.T) {
	m, st, _ := setupManager(t, undo.Options{})

	addTask(t, m, st, "one")
	addTask(t, m, st, "two")

	_, err := m.Undo()
	require.NoError(t, err)
	assert.True(t, m.CanRedo())

	addTask(t, m, st, "three")
	assert.False(t, m.CanRedo(), "a new edit invalidates the undone future")
}

func TestBatchUndoesAsOneUnitInReverseOrder(t *testing.T) {
	m, st, _ := setupManager(t, undo.Options{})

	require.NoError(t, m.BeginBatch("add and rename"))

	task := newTask(t, "draft")
	require.NoError(t, st.InsertTaskAt(task, 0))
	require.NoError(t, m.RecordCommand(undo.NewAdd(task, 0)))

	renamed := task
	renamed.Title = "final"
	require.NoError(t, st.ReplaceTask(task.ID, renamed))
	require.NoError(t, m.RecordCommand(undo.NewRename(task, renamed)))

	require.NoError(t, m.EndBatch())

	// Undoing out of order would try to rename a task that was already
	// removed, so a clean single undo proves strict reverse replay.
	desc, err := m.Undo()
	require.NoError(t, err)
	assert.Equal(t, "add and rename", desc)
	assert.Empty(t, st.Tasks())

	_, err = m.Redo()
	require.NoError(t, err)
	got, ok := st.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, "final", got.Title)
}

func TestEndBatchEmptyIsNoOp(t *testing.T) {
	m, _, _ := setupManager(t, undo.Options{})

	require.NoError(t, m.BeginBatch("nothing"))
	require.NoError(t, m.EndBatch())
	assert.False(t, m.CanUndo())
}

func TestCancelBatchDiscardsPending(t *testing.T) {
	m, st, _ := setupManager(t, undo.Options{})

	require.NoError(t, m.BeginBatch("abandoned"))
	addTask(t, m, st, "orphan")
	m.CancelBatch()

	assert.False(t, m.CanUndo())
	require.NoError(t, m.BeginBatch("again"), "cancel must release the batch slot")
	require.NoError(t, m.EndBatch())
}

func TestNestedBeginBatchRejected(t *testing.T) {
	m, _, _ := setupManager(t, undo.Options{})

	require.NoError(t, m.BeginBatch("outer"))
	assert.ErrorIs(t, m.BeginBatch("inner"), undo.ErrBatchOpen)
	require.NoError(t, m.EndBatch())
	assert.ErrorIs(t, m.EndBatch(), undo.ErrNoBatch)
}

func TestHistorySurvivesReconstruction(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("deck", "tasks.json")
	st, err := store.New(fs, path, store.FormatJSON)
	require.NoError(t, err)
	hist := undo.NewFileHistoryStore(fs, path+".undo.json")

	m := undo.New(st, hist, undo.Options{}, nil)
	task := addTask(t, m, st, "durable")

	// Same store file, fresh manager: checksum matches, so the stack
	// comes back intact.
	m2 := undo.New(st, hist, undo.Options{}, nil)
	assert.True(t, m2.CanUndo())

	desc, err := m2.Undo()
	require.NoError(t, err)
	assert.Contains(t, desc, "durable")
	_, ok := st.Get(task.ID)
	assert.False(t, ok)
}

func TestStaleHistoryIsDiscarded(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("deck", "tasks.json")
	st, err := store.New(fs, path, store.FormatJSON)
	require.NoError(t, err)
	hist := undo.NewFileHistoryStore(fs, path+".undo.json")

	m := undo.New(st, hist, undo.Options{}, nil)
	addTask(t, m, st, "mine")

	// Another process rewrites the store: the saved checksum and size
	// no longer match, so the whole history must be dropped.
	require.NoError(t, afero.WriteFile(fs, path, []byte(`{"tasks":[],"totalCount":0}`), 0644))

	m2 := undo.New(st, hist, undo.Options{}, nil)
	assert.False(t, m2.CanUndo())
	assert.False(t, m2.CanRedo())

	desc, err := m2.Undo()
	require.NoError(t, err)
	assert.Empty(t, desc)
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	m, st, _ := setupManager(t, undo.Options{MaxEntries: 3})

	for _, title := range []string{"a", "b", "c", "d", "e"} {
		addTask(t, m, st, title)
	}

	descs := m.UndoDescriptions()
	require.Len(t, descs, 3)
	assert.Equal(t, `add "e"`, descs[0])
	assert.Equal(t, `add "c"`, descs[2])
}

func TestRetentionPrunesExpiredCommands(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("deck", "tasks.json")
	st, err := store.New(fs, path, store.FormatJSON)
	require.NoError(t, err)
	hist := undo.NewFileHistoryStore(fs, path+".undo.json")

	m := undo.New(st, hist, undo.Options{RetentionDays: 30}, nil)
	addTask(t, m, st, "fresh")
	addTask(t, m, st, "old")

	h, err := hist.Load()
	require.NoError(t, err)
	require.Len(t, h.UndoStack, 2)
	h.UndoStack[1].CreatedAt = time.Now().UTC().AddDate(0, 0, -40)
	require.NoError(t, hist.Save(h))

	require.NoError(t, m.ReloadHistory())
	descs := m.UndoDescriptions()
	require.Len(t, descs, 1)
	assert.Equal(t, `add "fresh"`, descs[0])
}

func TestReplayGuardSuppressesRecording(t *testing.T) {
	m, st, _ := setupManager(t, undo.Options{})

	st.SetReplaying(true)
	task := newTask(t, "ghost")
	require.NoError(t, st.InsertTaskAt(task, 0))
	require.NoError(t, m.RecordCommand(undo.NewAdd(task, 0)))
	st.SetReplaying(false)

	assert.False(t, m.CanUndo(), "mutations during replay must not be recorded")
}

func TestUndoReorderRestoresPosition(t *testing.T) {
	m, st, _ := setupManager(t, undo.Options{})

	a := addTask(t, m, st, "a")
	addTask(t, m, st, "b")
	addTask(t, m, st, "c")

	require.NoError(t, st.MoveTaskIndex(a.ID, 2))
	require.NoError(t, m.RecordCommand(undo.NewReorder(a, 0, 2)))
	assert.Equal(t, 2, st.IndexOf(a.ID))

	_, err := m.Undo()
	require.NoError(t, err)
	assert.Equal(t, 0, st.IndexOf(a.ID))

	_, err = m.Redo()
	require.NoError(t, err)
	assert.Equal(t, 2, st.IndexOf(a.ID))
}

func TestClearHistoryRemovesRecord(t *testing.T) {
	m, st, hist := setupManager(t, undo.Options{})

	addTask(t, m, st, "gone soon")
	require.NoError(t, m.ClearHistory())

	assert.False(t, m.CanUndo())
	h, err := hist.Load()
	require.NoError(t, err)
	assert.Nil(t, h)
}
