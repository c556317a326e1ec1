package undo

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskdeck/models"
)

// Kind discriminates the command variants. Persisted in history files,
// so the values must stay stable across releases.
type Kind string

const (
	KindAdd     Kind = "add"
	KindDelete  Kind = "delete"
	KindRename  Kind = "rename"
	KindMove    Kind = "move"
	KindStatus  Kind = "status"
	KindReorder Kind = "reorder"
	KindBatch   Kind = "batch"
)

// TaskStore is the slice of the store that commands replay against.
// *store.FileStore satisfies it.
type TaskStore interface {
	InsertTaskAt(t models.Task, index int) error
	RemoveTask(id string) error
	ReplaceTask(id string, t models.Task) error
	MoveTaskIndex(id string, index int) error
	Checksum() (string, error)
	Size() (int64, error)
	SetReplaying(v bool)
	Replaying() bool
}

// Command is a reversible edit. One struct covers every variant; which
// fields are populated depends on Kind. Add/Delete carry a full task
// snapshot plus its list position so either direction can reconstruct
// the exact prior state. Rename/Move/Status carry full before/after
// snapshots and replay through ReplaceTask, which keeps undo-then-redo
// byte-identical even for timestamp fields.
type Command struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`

	Task  *models.Task `json:"task,omitempty"`  // add, delete
	Index int          `json:"index,omitempty"` // add, delete: list position

	TaskID string       `json:"taskId,omitempty"` // rename, move, status, reorder
	Before *models.Task `json:"before,omitempty"` // rename, move, status
	After  *models.Task `json:"after,omitempty"`  // rename, move, status

	OldIndex int `json:"oldIndex,omitempty"` // reorder
	NewIndex int `json:"newIndex,omitempty"` // reorder

	Commands []Command `json:"commands,omitempty"` // batch
}

func newCommand(kind Kind, description string) Command {
	return Command{
		ID:          uuid.New().String(),
		Kind:        kind,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewAdd records the insertion of task at index.
func NewAdd(task models.Task, index int) Command {
	c := newCommand(KindAdd, fmt.Sprintf("add %q", task.Title))
	c.Task = &task
	c.Index = index
	return c
}

// NewDelete records the removal of task from index.
func NewDelete(task models.Task, index int) Command {
	c := newCommand(KindDelete, fmt.Sprintf("delete %q", task.Title))
	c.Task = &task
	c.Index = index
	return c
}

// NewRename records a title change, captured as full snapshots.
func NewRename(before, after models.Task) Command {
	c := newCommand(KindRename, fmt.Sprintf("rename %q to %q", before.Title, after.Title))
	c.TaskID = before.ID
	c.Before = &before
	c.After = &after
	return c
}

// NewMove records a reparenting, captured as full snapshots.
func NewMove(before, after models.Task) Command {
	c := newCommand(KindMove, fmt.Sprintf("move %q", before.Title))
	c.TaskID = before.ID
	c.Before = &before
	c.After = &after
	return c
}

// NewSetStatus records a status transition, captured as full snapshots.
func NewSetStatus(before, after models.Task) Command {
	c := newCommand(KindStatus, fmt.Sprintf("mark %q %s", before.Title, after.Status))
	c.TaskID = before.ID
	c.Before = &before
	c.After = &after
	return c
}

// NewReorder records moving a task between list positions.
func NewReorder(task models.Task, oldIndex, newIndex int) Command {
	c := newCommand(KindReorder, fmt.Sprintf("reorder %q", task.Title))
	c.TaskID = task.ID
	c.OldIndex = oldIndex
	c.NewIndex = newIndex
	return c
}

// NewBatch groups commands into one undo/redo unit.
func NewBatch(description string, cmds []Command) Command {
	c := newCommand(KindBatch, description)
	c.Commands = cmds
	return c
}

// apply replays the command's forward effect.
func (c Command) apply(s TaskStore) error {
	switch c.Kind {
	case KindAdd:
		return s.InsertTaskAt(*c.Task, c.Index)
	case KindDelete:
		return s.RemoveTask(c.Task.ID)
	case KindRename, KindMove, KindStatus:
		return s.ReplaceTask(c.TaskID, *c.After)
	case KindReorder:
		return s.MoveTaskIndex(c.TaskID, c.NewIndex)
	case KindBatch:
		for _, sub := range c.Commands {
			if err := sub.apply(s); err != nil {
				return fmt.Errorf("batch %q: %w", c.Description, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
}

// revert replays the command's reverse effect. Batches revert their
// sub-commands in strict reverse of recording order, since later
// sub-effects may depend on earlier ones.
func (c Command) revert(s TaskStore) error {
	switch c.Kind {
	case KindAdd:
		return s.RemoveTask(c.Task.ID)
	case KindDelete:
		return s.InsertTaskAt(*c.Task, c.Index)
	case KindRename, KindMove, KindStatus:
		return s.ReplaceTask(c.TaskID, *c.Before)
	case KindReorder:
		return s.MoveTaskIndex(c.TaskID, c.OldIndex)
	case KindBatch:
		for i := len(c.Commands) - 1; i >= 0; i-- {
			if err := c.Commands[i].revert(s); err != nil {
				return fmt.Errorf("batch %q: %w", c.Description, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
}
