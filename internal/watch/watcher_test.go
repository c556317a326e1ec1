package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testDebounce = 100 * time.Millisecond
	settle       = 600 * time.Millisecond
)

func setupWatcher(t *testing.T) (*Watcher, string, *atomic.Int32) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte(`{"tasks":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, Options{Debounce: testDebounce, PollInterval: 10 * time.Second}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var fired atomic.Int32
	w.OnChanged(func() { fired.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(w.Stop)

	return w, path, &fired
}

// touch rewrites the file and pushes its mtime forward so coarse mtime
// granularity can never mask the write.
func touch(t *testing.T, path, content string, offset time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(offset)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
}

func waitForCount(t *testing.T, fired *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fired.Load() == want {
			// Hold a moment to catch late extra callbacks.
			time.Sleep(settle)
			if got := fired.Load(); got != want {
				t.Fatalf("callback count moved after settling: got %d, want %d", got, want)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("callback count: got %d, want %d", fired.Load(), want)
}

func TestRapidWritesDebounceToOneCallback(t *testing.T) {
	_, path, fired := setupWatcher(t)

	for i := 0; i < 5; i++ {
		touch(t, path, fmt.Sprintf(`{"rev":%d}`, i), time.Duration(i+1)*time.Second)
		time.Sleep(10 * time.Millisecond) // well inside the debounce window
	}

	waitForCount(t, fired, 1)
}

func TestMetadataOnlyTouchIsSuppressed(t *testing.T) {
	_, path, fired := setupWatcher(t)

	// Change only the modification time, not the content.
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	time.Sleep(settle)
	if got := fired.Load(); got != 0 {
		t.Fatalf("metadata-only touch fired %d callbacks, want 0", got)
	}
}

func TestRefreshBaselineSuppressesOwnWrite(t *testing.T) {
	w, path, fired := setupWatcher(t)

	w.Suspend()
	touch(t, path, `{"mine":true}`, time.Second)
	if err := w.RefreshBaseline(); err != nil {
		t.Fatalf("RefreshBaseline failed: %v", err)
	}
	w.Resume()

	time.Sleep(settle)
	if got := fired.Load(); got != 0 {
		t.Fatalf("own write fired %d callbacks after RefreshBaseline, want 0", got)
	}
}

func TestSuspendResumeCoalesces(t *testing.T) {
	w, path, fired := setupWatcher(t)

	w.Suspend()
	for i := 0; i < 3; i++ {
		touch(t, path, fmt.Sprintf(`{"burst":%d}`, i), time.Duration(i+1)*time.Second)
		time.Sleep(2 * testDebounce) // let each debounce window elapse while suspended
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("callbacks fired while suspended: %d", got)
	}

	w.Resume()
	waitForCount(t, fired, 1)
}

func TestExternalChangeFires(t *testing.T) {
	_, path, fired := setupWatcher(t)

	touch(t, path, `{"external":true}`, time.Second)
	waitForCount(t, fired, 1)
}

func TestNativeSubscriptionRestartsAfterFailure(t *testing.T) {
	w, path, fired := setupWatcher(t)

	w.mu.Lock()
	n := w.notifier
	w.mu.Unlock()
	if n == nil {
		t.Skip("native watch unavailable on this platform")
	}

	// Kill the subscription out from under the run loop; the loop must
	// recycle it rather than give up or propagate the failure.
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w.mu.Lock()
		replaced := w.notifier != nil && w.notifier != n
		w.mu.Unlock()
		if replaced {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription was not recreated")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The poll interval is 10s and waitForCount gives up after 3s, so only
	// the recreated native subscription can deliver this change in time.
	touch(t, path, `{"after":"restart"}`, time.Second)
	waitForCount(t, fired, 1)
}

func TestPollSuspectsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, Options{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if w.pollSuspectsChange() {
		t.Error("fresh baseline should not suspect a change")
	}

	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	if !w.pollSuspectsChange() {
		t.Error("newer mtime should be suspected (the debounced check then verifies content)")
	}
}

func TestStopIsIdempotentAndStartTwiceIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
