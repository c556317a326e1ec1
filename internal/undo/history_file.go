package undo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"taskdeck/internal/atomicfile"
)

// FileHistoryStore keeps the history record as a JSON file next to the
// task store, written atomically so a crash mid-save never leaves a
// half-written record.
type FileHistoryStore struct {
	fs     afero.Fs
	writer *atomicfile.Writer
	path   string
}

// NewFileHistoryStore persists history at path (conventionally
// <store>.undo.json in the store's directory).
func NewFileHistoryStore(fs afero.Fs, path string) *FileHistoryStore {
	return &FileHistoryStore{
		fs:     fs,
		writer: atomicfile.NewWriter(fs),
		path:   path,
	}
}

func (s *FileHistoryStore) Load() (*History, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read undo history: %w", err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse undo history: %w", err)
	}
	return &h, nil
}

func (s *FileHistoryStore) Save(h *History) error {
	if err := s.writer.WriteJSON(s.path, h); err != nil {
		return fmt.Errorf("save undo history: %w", err)
	}
	return nil
}

func (s *FileHistoryStore) Clear() error {
	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear undo history: %w", err)
	}
	return nil
}
