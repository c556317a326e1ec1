package atomicfile

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestWriteBytes_CreatesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)

	path := filepath.Join("data", "tasks.json")
	if err := w.WriteBytes(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	got, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content mismatch: got %q, want %q", got, "hello")
	}
}

func TestWriteBytes_ReplacesExistingContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)

	path := "store.json"
	if err := w.WriteBytes(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := w.WriteBytes(path, []byte("new content"), 0o644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	got, _ := afero.ReadFile(fs, path)
	if string(got) != "new content" {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteBytes_FailureLeavesOldContent(t *testing.T) {
	base := afero.NewMemMapFs()
	w := NewWriter(base)

	path := "store.json"
	if err := w.WriteBytes(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	// A read-only filesystem rejects the temp-file creation, simulating an
	// interrupted write. The destination must be untouched.
	ro := NewWriter(afero.NewReadOnlyFs(base))
	if err := ro.WriteBytes(path, []byte("partial"), 0o644); err == nil {
		t.Fatal("expected write on read-only fs to fail")
	}

	got, err := afero.ReadFile(base, path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "original" {
		t.Errorf("destination changed after failed write: got %q", got)
	}
}

func TestWriteBytes_NoTempFileLeftBehind(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)

	if err := w.WriteBytes("dir/tasks.json", []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	entries, err := afero.ReadDir(fs, "dir")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one file, got %d", len(entries))
	}
}

func TestWriteJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)

	v := map[string]int{"count": 3}
	if err := w.WriteJSON("out.json", v); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	got, _ := afero.ReadFile(fs, "out.json")
	if !strings.Contains(string(got), `"count": 3`) {
		t.Errorf("unexpected JSON output: %s", got)
	}
}

func TestWriteText(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)

	if err := w.WriteText("note.txt", "remember"); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	got, _ := afero.ReadFile(fs, "note.txt")
	if string(got) != "remember" {
		t.Errorf("content mismatch: got %q", got)
	}
}
