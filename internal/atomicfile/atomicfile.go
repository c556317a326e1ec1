// Package atomicfile persists files with write-temp-then-rename semantics.
// The destination is always either the complete old content or the complete
// new content, never a partial write, regardless of crash timing.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Writer writes files atomically on the given filesystem.
type Writer struct {
	fs afero.Fs
}

// NewWriter returns a Writer backed by fs. Pass afero.NewOsFs() for real disk.
func NewWriter(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// WriteBytes atomically replaces path with data. The temporary file is
// created in the same directory as path; renames across filesystems are not
// atomic.
func (w *Writer) WriteBytes(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file %s: %w", tmpName, err)
	}
	// Flush to stable storage before the rename makes the content visible.
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("close temp file %s: %w", tmpName, err)
	}
	if err := w.fs.Chmod(tmpName, perm); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("chmod temp file %s: %w", tmpName, err)
	}
	if err := w.fs.Rename(tmpName, path); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}

// WriteText atomically replaces path with the given text.
func (w *Writer) WriteText(path, text string) error {
	return w.WriteBytes(path, []byte(text), 0o644)
}

// WriteJSON marshals v with indentation and atomically replaces path.
func (w *Writer) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	return w.WriteBytes(path, data, 0o644)
}
