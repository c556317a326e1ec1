// Package app wires the persistence core into one services container
// per store root. CLI handlers stay thin adapters over it.
package app

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"taskdeck/internal/backup"
	"taskdeck/internal/config"
	"taskdeck/internal/fslock"
	"taskdeck/internal/logging"
	"taskdeck/internal/undo"
	"taskdeck/internal/watch"
	"taskdeck/store"
)

// Services holds the shared dependencies for one store root. Building
// one container per root (instead of package globals) lets tests and
// multiple roots coexist without cross-contamination.
type Services struct {
	Cfg     config.Config
	Log     *zap.Logger
	FS      afero.Fs
	Store   *store.FileStore
	Backups *backup.Manager
	Undo    *undo.Manager

	hist    undo.HistoryStore
	lock    *fslock.Lock
	watcher *watch.Watcher
}

// defaultLockTimeout bounds lock acquisition for embedders that build a
// Config by hand instead of going through the viper defaults.
const defaultLockTimeout = 5 * time.Second

// New builds the container against the real filesystem rooted at the
// configured data directory. Zero-value knobs fall back to the same
// defaults the config layer registers, so front ends embedding the core
// can pass a partially filled Config.
func New(cfg config.Config, log *zap.Logger) (*Services, error) {
	log = logging.OrNop(log)
	fs := afero.NewOsFs()

	if cfg.Lock.Timeout <= 0 {
		cfg.Lock.Timeout = defaultLockTimeout
	}
	if cfg.Data.Format == "" {
		cfg.Data.Format = "json"
	}

	dir := config.GetBaseDir()
	if cfg.Data.Dir != "" {
		dir = cfg.Data.Dir
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	cfg.Data.Dir = dir
	storePath := config.StorePath(cfg)

	st, err := store.New(fs, storePath, cfg.Data.Format)
	if err != nil {
		return nil, err
	}

	bm := backup.NewManager(fs, storePath, backup.Options{
		MaxVersionBackups:  cfg.Backup.MaxVersions,
		MaxDailyBackupDays: cfg.Backup.MaxDailyDays,
		Companions:         []string{st.ChecksumPath()},
	}, log)

	hist, err := newHistoryStore(fs, cfg, storePath)
	if err != nil {
		return nil, err
	}

	um := undo.New(st, hist, undo.Options{
		MaxEntries:    cfg.Undo.MaxEntries,
		RetentionDays: cfg.Undo.RetentionDays,
	}, log)

	base := strings.TrimSuffix(filepath.Base(storePath), filepath.Ext(storePath))

	return &Services{
		Cfg:     cfg,
		Log:     log,
		FS:      fs,
		Store:   st,
		Backups: bm,
		Undo:    um,
		hist:    hist,
		lock:    fslock.New(dir, base),
	}, nil
}

func newHistoryStore(fs afero.Fs, cfg config.Config, storePath string) (undo.HistoryStore, error) {
	switch cfg.Undo.Store {
	case "sqlite":
		return undo.NewSQLiteHistoryStore(filepath.Join(filepath.Dir(storePath), "undo.db"))
	case "", "file":
		return undo.NewFileHistoryStore(fs, storePath+".undo.json"), nil
	default:
		return nil, fmt.Errorf("unknown undo store %q", cfg.Undo.Store)
	}
}

// OnChanged subscribes cb to external store changes. The watcher is
// created on first use; internal reload (store + undo history) happens
// before cb runs, so the callback sees refreshed state.
func (s *Services) OnChanged(cb func()) error {
	if s.watcher == nil {
		w, err := watch.New(s.Store.Path(), watch.Options{
			Debounce:     s.Cfg.Watch.Debounce,
			PollInterval: s.Cfg.Watch.PollInterval,
		}, s.Log)
		if err != nil {
			return err
		}
		w.OnChanged(func() {
			if err := s.Store.Reload(); err != nil {
				s.Log.Warn("store reload after external change failed", zap.Error(err))
			}
			if err := s.Undo.ReloadHistory(); err != nil {
				s.Log.Warn("undo history reload failed", zap.Error(err))
			}
		})
		if err := w.Start(); err != nil {
			return err
		}
		s.watcher = w
	}
	s.watcher.OnChanged(cb)
	return nil
}

// mutate runs fn under the cross-process lock with a best-effort
// backup beforehand and a watcher baseline refresh afterwards, so the
// process does not notify itself about its own write.
func (s *Services) mutate(fn func() error) error {
	if err := s.lock.Acquire(s.Cfg.Lock.Timeout); err != nil {
		return err
	}
	defer func() { _ = s.lock.Release() }()

	s.Backups.CreateBackup()

	if err := fn(); err != nil {
		return err
	}

	if s.watcher != nil {
		if err := s.watcher.RefreshBaseline(); err != nil {
			s.Log.Warn("baseline refresh failed", zap.Error(err))
		}
	}
	return nil
}

// Close stops the watcher and releases held resources.
func (s *Services) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	var err error
	if c, ok := s.hist.(io.Closer); ok {
		err = c.Close()
	}
	if rerr := s.lock.Release(); rerr != nil && err == nil {
		err = rerr
	}
	return err
}
