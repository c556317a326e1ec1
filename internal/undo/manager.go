package undo

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskdeck/internal/logging"
)

// ErrBatchOpen is returned when a batch is started while another is
// still in progress.
var ErrBatchOpen = errors.New("batch already in progress")

// ErrNoBatch is returned when EndBatch is called without a matching
// BeginBatch.
var ErrNoBatch = errors.New("no batch in progress")

// Options tune the manager's bounded-memory policy.
type Options struct {
	// MaxEntries caps the undo stack; the oldest entries are evicted
	// past it. Defaults to 50.
	MaxEntries int
	// RetentionDays drops persisted commands older than this on load.
	// Defaults to 30.
	RetentionDays int
}

func (o Options) withDefaults() Options {
	if o.MaxEntries <= 0 {
		o.MaxEntries = 50
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 30
	}
	return o
}

// Manager maintains the undo and redo stacks for one store root and
// persists them through a HistoryStore. Persisted history is trusted
// only while its checksum and size match the live store file; on any
// mismatch the entire history is discarded, since another process has
// changed the store out from under it.
type Manager struct {
	store TaskStore
	hist  HistoryStore
	opts  Options
	log   *zap.Logger

	mu        sync.Mutex
	undo      []Command // oldest first; top of stack at the end
	redo      []Command
	batch     []Command
	batchDesc string
	batchOpen bool
}

// New builds a manager and loads any persisted history. A stale or
// unreadable record starts the manager empty rather than failing.
func New(store TaskStore, hist HistoryStore, opts Options, log *zap.Logger) *Manager {
	m := &Manager{
		store: store,
		hist:  hist,
		opts:  opts.withDefaults(),
		log:   logging.OrNop(log),
	}
	if err := m.ReloadHistory(); err != nil {
		m.log.Warn("undo history unreadable, starting empty", zap.Error(err))
	}
	return m
}

// RecordCommand pushes a freshly executed command. While a batch is
// open the command joins the batch instead. Recording a new edit
// clears the redo stack. Commands are never recorded during replay,
// so undoing an edit does not itself become undoable.
func (m *Manager) RecordCommand(cmd Command) error {
	if m.store.Replaying() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batchOpen {
		m.batch = append(m.batch, cmd)
		return nil
	}

	m.pushLocked(cmd)
	return m.persistLocked()
}

// BeginBatch opens a composite command grouping subsequent records
// into one undo/redo unit.
func (m *Manager) BeginBatch(description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batchOpen {
		return ErrBatchOpen
	}
	m.batchOpen = true
	m.batchDesc = description
	m.batch = nil
	return nil
}

// EndBatch closes the current batch and records it. Closing an empty
// batch records nothing.
func (m *Manager) EndBatch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.batchOpen {
		return ErrNoBatch
	}
	cmds := m.batch
	desc := m.batchDesc
	m.batchOpen = false
	m.batch = nil
	m.batchDesc = ""

	if len(cmds) == 0 {
		return nil
	}
	m.pushLocked(NewBatch(desc, cmds))
	return m.persistLocked()
}

// CancelBatch discards an in-progress batch without recording anything.
func (m *Manager) CancelBatch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchOpen = false
	m.batch = nil
	m.batchDesc = ""
}

// Undo reverses the most recent command and returns its description,
// or "" when there is nothing to undo. An empty stack is not an error.
func (m *Manager) Undo() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.undo) == 0 {
		return "", nil
	}
	cmd := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]

	if err := m.replayLocked(cmd, Command.revert); err != nil {
		m.undo = append(m.undo, cmd)
		return "", err
	}
	m.redo = append(m.redo, cmd)
	if err := m.persistLocked(); err != nil {
		return "", err
	}
	return cmd.Description, nil
}

// Redo re-applies the most recently undone command and returns its
// description, or "" when there is nothing to redo.
func (m *Manager) Redo() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.redo) == 0 {
		return "", nil
	}
	cmd := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]

	if err := m.replayLocked(cmd, Command.apply); err != nil {
		m.redo = append(m.redo, cmd)
		return "", err
	}
	m.undo = append(m.undo, cmd)
	if err := m.persistLocked(); err != nil {
		return "", err
	}
	return cmd.Description, nil
}

// CanUndo reports whether the undo stack is non-empty.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// UndoDescriptions lists the undo stack's descriptions, most recent
// first.
func (m *Manager) UndoDescriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.undo))
	for i := len(m.undo) - 1; i >= 0; i-- {
		out = append(out, m.undo[i].Description)
	}
	return out
}

// ReloadHistory re-reads the persisted record, discarding it when the
// store has changed since it was saved. A checksum or size mismatch is
// the designed invalidation path, not an error.
func (m *Manager) ReloadHistory() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.undo = nil
	m.redo = nil

	h, err := m.hist.Load()
	if err != nil {
		return err
	}
	if h == nil {
		return nil
	}
	if h.Version != historyVersion {
		m.log.Debug("undo history version mismatch, discarding",
			zap.Int("got", h.Version), zap.Int("want", historyVersion))
		return nil
	}

	sum, err := m.store.Checksum()
	if err != nil {
		return err
	}
	size, err := m.store.Size()
	if err != nil {
		return err
	}
	if h.StoreChecksum != sum || h.StoreSize != size {
		m.log.Debug("undo history stale, discarding",
			zap.String("savedChecksum", h.StoreChecksum),
			zap.String("liveChecksum", sum))
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -m.opts.RetentionDays)
	m.undo = pruneOld(h.UndoStack, cutoff)
	m.redo = pruneOld(h.RedoStack, cutoff)
	return nil
}

// ClearHistory empties both stacks and removes the persisted record.
func (m *Manager) ClearHistory() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.undo = nil
	m.redo = nil
	return m.hist.Clear()
}

// SaveHistory persists the current stacks against the store's current
// checksum and size.
func (m *Manager) SaveHistory() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistLocked()
}

func (m *Manager) pushLocked(cmd Command) {
	m.undo = append(m.undo, cmd)
	m.redo = nil
	if over := len(m.undo) - m.opts.MaxEntries; over > 0 {
		m.undo = append([]Command(nil), m.undo[over:]...)
	}
}

// replayLocked runs an effect against the store with the re-entrancy
// guard set, so replayed mutations are never recorded as new edits.
func (m *Manager) replayLocked(cmd Command, effect func(Command, TaskStore) error) error {
	m.store.SetReplaying(true)
	defer m.store.SetReplaying(false)
	return effect(cmd, m.store)
}

func (m *Manager) persistLocked() error {
	sum, err := m.store.Checksum()
	if err != nil {
		return err
	}
	size, err := m.store.Size()
	if err != nil {
		return err
	}
	return m.hist.Save(&History{
		Version:       historyVersion,
		StoreChecksum: sum,
		StoreSize:     size,
		UndoStack:     m.undo,
		RedoStack:     m.redo,
		SavedAt:       time.Now().UTC(),
	})
}

func pruneOld(cmds []Command, cutoff time.Time) []Command {
	var kept []Command
	for _, c := range cmds {
		if c.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
