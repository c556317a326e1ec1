// Package store implements the file-backed task store shared by every
// taskdeck process. Cross-process exclusion is the caller's responsibility;
// the store itself only guarantees that each save is atomic and that loads
// detect corruption through the checksum sidecar.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v3"

	"taskdeck/internal/atomicfile"
	"taskdeck/internal/checksum"
	"taskdeck/models"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"

	checksumSuffix = ".checksum"
)

// ErrTaskNotFound is returned when an operation names a task that is not in
// the store.
var ErrTaskNotFound = errors.New("task not found")

// FileStore persists an ordered task list to a single file with an atomic
// write per mutation and a checksum sidecar for corruption detection.
type FileStore struct {
	fs     afero.Fs
	writer *atomicfile.Writer
	path   string
	format string

	mu        sync.Mutex
	tasks     []models.Task
	replaying bool
}

// New creates a FileStore for the given path and format and loads the
// existing content. A missing file is created as an empty task list.
func New(filesystem afero.Fs, path, format string) (*FileStore, error) {
	format = strings.ToLower(format)
	switch format {
	case FormatJSON, FormatYAML, FormatTOML:
	case "":
		format = FormatJSON
	default:
		return nil, fmt.Errorf("unsupported data format: %s", format)
	}

	s := &FileStore{
		fs:     filesystem,
		writer: atomicfile.NewWriter(filesystem),
		path:   path,
		format: format,
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the live store file.
func (s *FileStore) Path() string { return s.path }

// ChecksumPath returns the location of the checksum sidecar. The sidecar and
// the store file form one logical snapshot bundle; backups copy and restore
// them together.
func (s *FileStore) ChecksumPath() string { return s.path + checksumSuffix }

// SetReplaying marks the store as being driven by undo/redo replay. While
// set, the application layer must not record new undo commands; this is the
// guard against recording the undo of an undo.
func (s *FileStore) SetReplaying(v bool) {
	s.mu.Lock()
	s.replaying = v
	s.mu.Unlock()
}

// Replaying reports whether an undo/redo replay is in progress.
func (s *FileStore) Replaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaying
}

// Reload re-reads the store file from disk, replacing the in-memory state.
func (s *FileStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.tasks = nil
			return s.saveLocked()
		}
		return fmt.Errorf("read store file %s: %w", s.path, err)
	}

	if sidecar, err := afero.ReadFile(s.fs, s.ChecksumPath()); err == nil {
		expected := strings.TrimSpace(string(sidecar))
		if actual := checksum.Sum(data); actual != expected {
			return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", s.path, expected, actual)
		}
	}

	var list models.TaskList
	if len(data) > 0 {
		if err := unmarshal(s.format, data, &list); err != nil {
			return fmt.Errorf("decode store file %s: %w", s.path, err)
		}
	}
	s.tasks = list.Tasks
	return nil
}

func (s *FileStore) saveLocked() error {
	list := models.TaskList{Tasks: s.tasks, TotalCount: len(s.tasks)}
	if list.Tasks == nil {
		list.Tasks = []models.Task{}
	}
	data, err := marshal(s.format, list)
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := s.writer.WriteBytes(s.path, data, 0o644); err != nil {
		return err
	}
	// The sidecar follows the data file; a crash between the two renames
	// leaves a stale sidecar, which the next load reports as a mismatch.
	return s.writer.WriteText(s.ChecksumPath(), checksum.Sum(data))
}

// mutate runs fn against the task slice under the lock and persists the
// result, rolling the in-memory state back on save failure.
func (s *FileStore) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	if err := s.saveLocked(); err != nil {
		_ = s.loadLocked()
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

// InsertTaskAt inserts t at the given position. An index beyond the end
// appends.
func (s *FileStore) InsertTaskAt(t models.Task, index int) error {
	if err := models.ValidateStruct(t); err != nil {
		return err
	}
	return s.mutate(func() error {
		if s.indexOfLocked(t.ID) >= 0 {
			return fmt.Errorf("task %s already exists", t.ID)
		}
		if index < 0 || index > len(s.tasks) {
			index = len(s.tasks)
		}
		s.tasks = append(s.tasks, models.Task{})
		copy(s.tasks[index+1:], s.tasks[index:])
		s.tasks[index] = t
		return nil
	})
}

// RemoveTask deletes the task with the given id.
func (s *FileStore) RemoveTask(id string) error {
	return s.mutate(func() error {
		i := s.indexOfLocked(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		return nil
	})
}

// ReplaceTask swaps the stored task with the given state, keeping its
// position. Undo replay uses this to restore exact before/after snapshots.
func (s *FileStore) ReplaceTask(id string, t models.Task) error {
	if err := models.ValidateStruct(t); err != nil {
		return err
	}
	if t.ID != id {
		return fmt.Errorf("replacement task id %s does not match %s", t.ID, id)
	}
	return s.mutate(func() error {
		i := s.indexOfLocked(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		s.tasks[i] = t
		return nil
	})
}

// MoveTaskIndex moves the task to a new position in the list order.
func (s *FileStore) MoveTaskIndex(id string, index int) error {
	return s.mutate(func() error {
		i := s.indexOfLocked(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if index < 0 || index >= len(s.tasks) {
			index = len(s.tasks) - 1
		}
		t := s.tasks[i]
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		s.tasks = append(s.tasks, models.Task{})
		copy(s.tasks[index+1:], s.tasks[index:])
		s.tasks[index] = t
		return nil
	})
}

// Get returns the task with the given id.
func (s *FileStore) Get(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOfLocked(id)
	if i < 0 {
		return models.Task{}, false
	}
	return s.tasks[i], true
}

// IndexOf returns the position of the task in list order, or -1.
func (s *FileStore) IndexOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(id)
}

func (s *FileStore) indexOfLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Tasks returns a copy of the task list in store order.
func (s *FileStore) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Descendants returns all transitive children of the task with the given id,
// parents before their children.
func (s *FileStore) Descendants(id string) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Task
	frontier := []string{id}
	for len(frontier) > 0 {
		next := frontier
		frontier = nil
		for _, parent := range next {
			for i := range s.tasks {
				t := s.tasks[i]
				if t.ParentID != nil && *t.ParentID == parent {
					out = append(out, t)
					frontier = append(frontier, t.ID)
				}
			}
		}
	}
	return out
}

func marshal(format string, list models.TaskList) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(list, "", "  ")
	case FormatYAML:
		return yaml.Marshal(list)
	case FormatTOML:
		buf := new(bytes.Buffer)
		if err := toml.NewEncoder(buf).Encode(list); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported data format: %s", format)
}

func unmarshal(format string, data []byte, list *models.TaskList) error {
	switch format {
	case FormatJSON:
		return json.Unmarshal(data, list)
	case FormatYAML:
		return yaml.Unmarshal(data, list)
	case FormatTOML:
		return toml.Unmarshal(data, list)
	}
	return fmt.Errorf("unsupported data format: %s", format)
}
