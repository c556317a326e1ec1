package store

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"

	"taskdeck/internal/checksum"
)

// Snapshot returns the raw bytes of the live store file. The persistence
// core never interprets them; it only backs them up, restores them and
// checksums them. Snapshot and Restore are the opaque-snapshot surface
// for front ends that manage their own copies of the store (the backup
// manager works on the files directly so it can carry the sidecar in the
// same bundle).
func (s *FileStore) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store file %s: %w", s.path, err)
	}
	return data, nil
}

// Restore atomically replaces the live store with the given snapshot bytes,
// rewrites the checksum sidecar to match, and reloads the in-memory state.
// It accepts anything a prior Snapshot returned, including nil for an
// empty store.
func (s *FileStore) Restore(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.WriteBytes(s.path, data, 0o644); err != nil {
		return fmt.Errorf("restore store file: %w", err)
	}
	if err := s.writer.WriteText(s.ChecksumPath(), checksum.Sum(data)); err != nil {
		return fmt.Errorf("restore checksum sidecar: %w", err)
	}
	return s.loadLocked()
}

// Checksum returns the integrity hash of the live store file as currently on
// disk. A missing file hashes as empty content.
func (s *FileStore) Checksum() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read store file %s: %w", s.path, err)
	}
	return checksum.Sum(data), nil
}

// Size returns the byte size of the live store file, 0 when missing.
func (s *FileStore) Size() (int64, error) {
	info, err := s.fs.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat store file %s: %w", s.path, err)
	}
	return info.Size(), nil
}
