// Package watch reports external changes to the store file. It combines a
// native fsnotify subscription with a periodic poll, because native
// notification silently misses events on some platforms and filesystems.
// Raw events are debounced, then verified against a baseline of modification
// time and content hash so metadata-only touches never fire a notification.
package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"taskdeck/internal/checksum"
	"taskdeck/internal/logging"
)

// Options tunes the watcher intervals. The defaults were sane in practice
// but are not load-bearing; both are configurable.
type Options struct {
	Debounce     time.Duration // default 150ms
	PollInterval time.Duration // default 2s
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 150 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

// baseline is the reference point the live file is compared against to
// decide whether a change is real.
type baseline struct {
	modTime time.Time
	hash    string
}

// Watcher watches one store file for external modification.
type Watcher struct {
	path string
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	base      baseline
	timer     *time.Timer
	callbacks []func()
	suspended bool
	pending   bool
	notifier  *fsnotify.Watcher

	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a watcher for the file at path with its baseline set to the
// file's current state.
func New(path string, opts Options, log *zap.Logger) (*Watcher, error) {
	w := &Watcher{
		path: filepath.Clean(path),
		opts: opts.withDefaults(),
		log:  logging.OrNop(log),
		done: make(chan struct{}),
	}
	if err := w.RefreshBaseline(); err != nil {
		return nil, err
	}
	return w, nil
}

// OnChanged registers a callback invoked after a verified external change.
// Callbacks run on the watcher goroutine and must not block for long.
func (w *Watcher) OnChanged(cb func()) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, cb)
	w.mu.Unlock()
}

// Start begins watching. The native subscription is best-effort; if it
// cannot be established the watcher runs on polling alone.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.notifier = w.newNotifier()
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop shuts the watcher down and waits for its goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.done)
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.notifier != nil {
		_ = w.notifier.Close()
	}
	w.mu.Unlock()

	w.wg.Wait()
}

// newNotifier subscribes to the directory holding the store file. Watching
// the directory instead of the file survives the rename step of every atomic
// write.
func (w *Watcher) newNotifier() *fsnotify.Watcher {
	n, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("native watch unavailable, falling back to polling", zap.Error(err))
		return nil
	}
	if err := n.Add(filepath.Dir(w.path)); err != nil {
		w.log.Warn("native watch unavailable, falling back to polling", zap.Error(err))
		_ = n.Close()
		return nil
	}
	return n
}

func (w *Watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.mu.Lock()
		n := w.notifier
		w.mu.Unlock()

		var events chan fsnotify.Event
		var errs chan error
		if n != nil {
			events = n.Events
			errs = n.Errors
		}

		select {
		case ev, ok := <-events:
			if !ok {
				if !w.restartNative() {
					return
				}
				continue
			}
			if filepath.Clean(ev.Name) == w.path {
				w.bump()
			}

		case err, ok := <-errs:
			if !ok {
				if !w.restartNative() {
					return
				}
				continue
			}
			// Watcher-internal errors never propagate; the subscription is
			// recycled instead.
			w.log.Warn("native watch error, restarting subscription", zap.Error(err))
			w.restartNative()

		case <-ticker.C:
			if w.pollSuspectsChange() {
				w.bump()
			}

		case <-w.done:
			return
		}
	}
}

// restartNative replaces the fsnotify subscription. It reports false when
// the watcher is shutting down.
func (w *Watcher) restartNative() bool {
	select {
	case <-w.done:
		return false
	default:
	}

	w.mu.Lock()
	if w.notifier != nil {
		_ = w.notifier.Close()
	}
	w.notifier = w.newNotifier()
	w.mu.Unlock()
	return true
}

// pollSuspectsChange reports whether the file's modification time moved past
// the baseline. It is only a hint; the debounced check makes the call.
func (w *Watcher) pollSuspectsChange() bool {
	w.mu.Lock()
	base := w.base
	w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		return base.hash != checksum.Sum(nil)
	}
	return info.ModTime().After(base.modTime)
}

// bump restarts the debounce timer. Only when the timer elapses without a
// further event does the watcher actually examine the file.
func (w *Watcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.check)
}

// check verifies a suspected change against the baseline and fires the
// callbacks only when the content hash really moved.
func (w *Watcher) check() {
	w.mu.Lock()
	if w.suspended {
		w.pending = true
		w.mu.Unlock()
		return
	}
	base := w.base
	w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) && base.hash != checksum.Sum(nil) {
			w.fire(baseline{hash: checksum.Sum(nil)})
		}
		return
	}
	if !info.ModTime().After(base.modTime) {
		return
	}

	// The mtime moved, but metadata-only touches are common; only a content
	// hash mismatch counts as a real change.
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn("change check failed", zap.Error(err))
		return
	}
	hash := checksum.Sum(data)
	if hash == base.hash {
		w.mu.Lock()
		w.base.modTime = info.ModTime()
		w.mu.Unlock()
		return
	}

	w.fire(baseline{modTime: info.ModTime(), hash: hash})
}

// fire updates the baseline and invokes the registered callbacks.
func (w *Watcher) fire(next baseline) {
	w.mu.Lock()
	w.base = next
	cbs := make([]func(), len(w.callbacks))
	copy(cbs, w.callbacks)
	w.mu.Unlock()

	w.log.Debug("store changed externally", zap.String("path", w.path))
	for _, cb := range cbs {
		cb()
	}
}

// observe reads the file's current modification time and content hash. A
// missing file is observed as empty content.
func (w *Watcher) observe() (time.Time, string, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, checksum.Sum(nil), nil
		}
		return time.Time{}, "", err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return time.Time{}, "", err
	}
	return info.ModTime(), checksum.Sum(data), nil
}

// RefreshBaseline records the file's current state as the new baseline.
// A process calls this right after its own write so the write is not
// reported back to it as an external change.
func (w *Watcher) RefreshBaseline() error {
	modTime, hash, err := w.observe()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.base = baseline{modTime: modTime, hash: hash}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return nil
}

// Suspend defers change checks, coalescing a burst of self-induced writes
// (e.g. during an interactive drag) into a single check on Resume.
func (w *Watcher) Suspend() {
	w.mu.Lock()
	w.suspended = true
	w.mu.Unlock()
}

// Resume re-enables checks; if anything fired while suspended, one deferred
// check runs after the debounce interval.
func (w *Watcher) Resume() {
	w.mu.Lock()
	w.suspended = false
	fire := w.pending
	w.pending = false
	w.mu.Unlock()

	if fire {
		w.bump()
	}
}
