package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/undo"
	"taskdeck/models"
	"taskdeck/store"
)

// ErrWouldCycle is returned when a move would make a task its own
// ancestor.
var ErrWouldCycle = errors.New("move would create a cycle")

// AddTask appends a new task and records an undoable command.
func (s *Services) AddTask(title, notes string, parentID *string, tags []string) (models.Task, error) {
	now := time.Now().UTC()
	task := models.Task{
		ID:        uuid.NewString(),
		Title:     title,
		Notes:     notes,
		Status:    models.StatusPending,
		ParentID:  parentID,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.mutate(func() error {
		if parentID != nil {
			if _, ok := s.Store.Get(*parentID); !ok {
				return fmt.Errorf("parent task: %w", store.ErrTaskNotFound)
			}
		}
		idx := len(s.Store.Tasks())
		if err := s.Store.InsertTaskAt(task, idx); err != nil {
			return err
		}
		return s.Undo.RecordCommand(undo.NewAdd(task, idx))
	})
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task and all its descendants as one undoable
// batch. Descendants go first so that undo, replaying in reverse,
// reinserts parents before their children.
func (s *Services) DeleteTask(id string) error {
	return s.mutate(func() error {
		task, ok := s.Store.Get(id)
		if !ok {
			return store.ErrTaskNotFound
		}

		doomed := s.Store.Descendants(id) // parent-first order
		doomed = append([]models.Task{task}, doomed...)

		if err := s.Undo.BeginBatch(fmt.Sprintf("delete %q", task.Title)); err != nil {
			return err
		}
		for i := len(doomed) - 1; i >= 0; i-- {
			victim := doomed[i]
			idx := s.Store.IndexOf(victim.ID)
			if err := s.Store.RemoveTask(victim.ID); err != nil {
				s.Undo.CancelBatch()
				return err
			}
			if err := s.Undo.RecordCommand(undo.NewDelete(victim, idx)); err != nil {
				s.Undo.CancelBatch()
				return err
			}
		}
		return s.Undo.EndBatch()
	})
}

// RenameTask changes a task's title.
func (s *Services) RenameTask(id, title string) error {
	return s.mutate(func() error {
		before, ok := s.Store.Get(id)
		if !ok {
			return store.ErrTaskNotFound
		}
		after := before
		after.Title = title
		after.UpdatedAt = time.Now().UTC()

		if err := s.Store.ReplaceTask(id, after); err != nil {
			return err
		}
		return s.Undo.RecordCommand(undo.NewRename(before, after))
	})
}

// MoveTask reparents a task. A nil parentID moves it to the top level.
func (s *Services) MoveTask(id string, parentID *string) error {
	return s.mutate(func() error {
		before, ok := s.Store.Get(id)
		if !ok {
			return store.ErrTaskNotFound
		}
		if parentID != nil {
			if _, ok := s.Store.Get(*parentID); !ok {
				return fmt.Errorf("parent task: %w", store.ErrTaskNotFound)
			}
			if s.isAncestorOrSelf(id, *parentID) {
				return ErrWouldCycle
			}
		}

		after := before
		after.ParentID = parentID
		after.UpdatedAt = time.Now().UTC()

		if err := s.Store.ReplaceTask(id, after); err != nil {
			return err
		}
		return s.Undo.RecordCommand(undo.NewMove(before, after))
	})
}

// SetStatus transitions a task's status, maintaining CompletedAt.
func (s *Services) SetStatus(id string, status models.TaskStatus) error {
	return s.mutate(func() error {
		before, ok := s.Store.Get(id)
		if !ok {
			return store.ErrTaskNotFound
		}
		now := time.Now().UTC()
		after := before
		after.Status = status
		after.UpdatedAt = now
		if status == models.StatusCompleted {
			after.CompletedAt = &now
		} else {
			after.CompletedAt = nil
		}

		if err := s.Store.ReplaceTask(id, after); err != nil {
			return err
		}
		return s.Undo.RecordCommand(undo.NewSetStatus(before, after))
	})
}

// ReorderTask moves a task to a new list position.
func (s *Services) ReorderTask(id string, newIndex int) error {
	return s.mutate(func() error {
		task, ok := s.Store.Get(id)
		if !ok {
			return store.ErrTaskNotFound
		}
		oldIndex := s.Store.IndexOf(id)
		if err := s.Store.MoveTaskIndex(id, newIndex); err != nil {
			return err
		}
		return s.Undo.RecordCommand(undo.NewReorder(task, oldIndex, newIndex))
	})
}

// UndoLast reverses the most recent recorded action and returns its
// description, or "" when there is nothing to undo.
func (s *Services) UndoLast() (string, error) {
	var desc string
	err := s.mutate(func() error {
		var err error
		desc, err = s.Undo.Undo()
		return err
	})
	return desc, err
}

// RedoLast re-applies the most recently undone action.
func (s *Services) RedoLast() (string, error) {
	var desc string
	err := s.mutate(func() error {
		var err error
		desc, err = s.Undo.Redo()
		return err
	})
	return desc, err
}

// RestoreBackup replaces the live store with the named backup and
// invalidates the undo history, whose checksum can no longer match.
func (s *Services) RestoreBackup(token string) error {
	if err := s.lock.Acquire(s.Cfg.Lock.Timeout); err != nil {
		return err
	}
	defer func() { _ = s.lock.Release() }()

	if err := s.Backups.RestoreBackup(token); err != nil {
		return err
	}
	if err := s.Store.Reload(); err != nil {
		return err
	}
	if err := s.Undo.ClearHistory(); err != nil {
		return err
	}
	if s.watcher != nil {
		if err := s.watcher.RefreshBaseline(); err != nil {
			return err
		}
	}
	return nil
}

// isAncestorOrSelf reports whether candidate is id itself or sits in
// id's subtree, walking parent pointers upward from candidate.
func (s *Services) isAncestorOrSelf(id, candidate string) bool {
	for cur := candidate; ; {
		if cur == id {
			return true
		}
		task, ok := s.Store.Get(cur)
		if !ok || task.ParentID == nil {
			return false
		}
		cur = *task.ParentID
	}
}
