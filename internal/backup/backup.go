// Package backup creates, rotates and restores snapshots of the live store.
// Three kinds of backup exist: version (one per mutating save, capped by
// count), daily (at most one per calendar date, capped by age) and
// pre-restore (uncapped safety snapshot written before every restore).
//
// The store file and its sidecars form one snapshot bundle: every kind of
// backup copies them together under the same timestamp token, and rotation
// deletes them together.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"taskdeck/internal/atomicfile"
	"taskdeck/internal/logging"
)

// ErrBackupNotFound is returned by RestoreBackup when no backup matches the
// given timestamp. It is recoverable; the live store is untouched.
var ErrBackupNotFound = errors.New("no backup found for timestamp")

// Timestamp encodings. Both are lexically sortable and parse back to the
// exact instant/date they encode.
const (
	VersionLayout = "2006-01-02T15-04-05"
	DailyLayout   = "2006-01-02"

	backupDirName = "backups"
	backupTag     = ".backup"
	dailyTag      = ".daily."
	preRestoreTag = ".pre-restore."
)

// Info describes one backup on disk.
type Info struct {
	FilePath  string    `json:"filePath"`
	Timestamp time.Time `json:"timestamp"`
	IsDaily   bool      `json:"isDaily"`
	FileSize  int64     `json:"fileSize"`
}

// Token returns the timestamp encoding RestoreBackup accepts for this backup.
func (i Info) Token() string {
	if i.IsDaily {
		return i.Timestamp.Format(DailyLayout)
	}
	return i.Timestamp.Format(VersionLayout)
}

// Options tunes rotation and bundling.
type Options struct {
	// MaxVersionBackups is the number of version backups kept after
	// rotation. Zero means the default of 10.
	MaxVersionBackups int
	// MaxDailyBackupDays is the age in days past which daily backups are
	// deleted. Zero means the default of 7.
	MaxDailyBackupDays int
	// Companions are sidecar files (e.g. the checksum file) bundled with
	// the store file in every snapshot.
	Companions []string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxVersionBackups <= 0 {
		o.MaxVersionBackups = 10
	}
	if o.MaxDailyBackupDays <= 0 {
		o.MaxDailyBackupDays = 7
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Manager creates and restores snapshot bundles of one store file.
// All methods are guarded by one process-local lock; cross-process exclusion
// is the caller's responsibility.
type Manager struct {
	fs        afero.Fs
	writer    *atomicfile.Writer
	storePath string
	dir       string
	stem      string // store file name without extension
	ext       string // store file extension, with dot
	opts      Options
	log       *zap.Logger

	mu sync.Mutex
}

// NewManager returns a Manager writing backups to a "backups" directory next
// to the store file.
func NewManager(filesystem afero.Fs, storePath string, opts Options, log *zap.Logger) *Manager {
	base := filepath.Base(storePath)
	ext := filepath.Ext(base)
	return &Manager{
		fs:        filesystem,
		writer:    atomicfile.NewWriter(filesystem),
		storePath: storePath,
		dir:       filepath.Join(filepath.Dir(storePath), backupDirName),
		stem:      strings.TrimSuffix(base, ext),
		ext:       ext,
		opts:      opts.withDefaults(),
		log:       logging.OrNop(log),
	}
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// CreateBackup snapshots the current store state. It never returns an error:
// backup is defense-in-depth subordinate to the primary save, so any I/O
// failure here is logged and swallowed rather than blocking the save.
func (m *Manager) CreateBackup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.createLocked(); err != nil {
		m.log.Warn("backup skipped", zap.Error(err))
	}
}

func (m *Manager) createLocked() error {
	exists, err := afero.Exists(m.fs, m.storePath)
	if err != nil {
		return err
	}
	if !exists {
		return nil // nothing to back up yet
	}
	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	now := m.opts.Now()
	if err := m.writeBundle("", now.Format(VersionLayout)); err != nil {
		return err
	}

	dailyToken := now.Format(DailyLayout)
	dailyExists, err := afero.Exists(m.fs, filepath.Join(m.dir, m.bundleName(m.storePath, dailyTag, dailyToken)))
	if err != nil {
		return err
	}
	if !dailyExists {
		if err := m.writeBundle(dailyTag, dailyToken); err != nil {
			return err
		}
	}

	return m.rotateLocked(now)
}

// writeBundle copies the store file and every existing companion into the
// backup directory under the given tag and timestamp token.
func (m *Manager) writeBundle(tag, token string) error {
	files := append([]string{m.storePath}, m.opts.Companions...)
	for _, src := range files {
		data, err := afero.ReadFile(m.fs, src)
		if err != nil {
			if src != m.storePath && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read %s: %w", src, err)
		}
		dst := filepath.Join(m.dir, m.bundleName(src, tag, token))
		if err := m.writer.WriteBytes(dst, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// bundleName derives the backup file name for one bundle member, e.g.
// tasks.2026-08-26T10-00-00.backup.json for the store file itself and
// tasks.json.2026-08-26T10-00-00.backup.checksum for its sidecar.
func (m *Manager) bundleName(src, tag, token string) string {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if tag == "" {
		tag = "."
	}
	return stem + tag + token + backupTag + ext
}

// ListBackups returns all version and daily backups, newest first.
func (m *Manager) ListBackups() ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

func (m *Manager) listLocked() ([]Info, error) {
	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, ok := m.parseName(e.Name())
		if !ok {
			continue
		}
		info.FileSize = e.Size()
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}

// parseName decodes a primary backup file name into an Info. Companion and
// pre-restore files yield ok == false.
func (m *Manager) parseName(name string) (Info, bool) {
	suffix := backupTag + m.ext
	if !strings.HasPrefix(name, m.stem+".") || !strings.HasSuffix(name, suffix) {
		return Info{}, false
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(name, m.stem), suffix)

	if strings.HasPrefix(middle, dailyTag) {
		ts, err := time.ParseInLocation(DailyLayout, strings.TrimPrefix(middle, dailyTag), time.Local)
		if err != nil {
			return Info{}, false
		}
		return Info{FilePath: filepath.Join(m.dir, name), Timestamp: ts, IsDaily: true}, true
	}
	if strings.HasPrefix(middle, preRestoreTag) {
		return Info{}, false
	}
	ts, err := time.ParseInLocation(VersionLayout, strings.TrimPrefix(middle, "."), time.Local)
	if err != nil {
		return Info{}, false
	}
	return Info{FilePath: filepath.Join(m.dir, name), Timestamp: ts}, true
}

// RestoreBackup replaces the live store with the backup matching the given
// timestamp token (version encoding checked first, then daily). A
// pre-restore snapshot of the current state is written first so the restore
// itself stays reversible. Undo history kept for the previous state is
// invalidated by the caller; its checksum can no longer match.
func (m *Manager) RestoreBackup(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tag, found, err := m.lookupLocked(token)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, token)
	}

	// Safety snapshot before touching the live store. Unlike CreateBackup
	// this failure is fatal: a restore that cannot be undone is worse than
	// no restore.
	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	preToken := m.opts.Now().Format(VersionLayout)
	if err := m.writeBundle(preRestoreTag, preToken); err != nil {
		return fmt.Errorf("write pre-restore backup: %w", err)
	}

	files := append([]string{m.storePath}, m.opts.Companions...)
	for _, dst := range files {
		src := filepath.Join(m.dir, m.bundleName(dst, tag, token))
		data, err := afero.ReadFile(m.fs, src)
		if err != nil {
			if dst != m.storePath && errors.Is(err, fs.ErrNotExist) {
				// Companion absent from the bundle: drop the live one so the
				// restored state is internally consistent.
				_ = m.fs.Remove(dst)
				continue
			}
			return fmt.Errorf("read backup %s: %w", src, err)
		}
		if err := m.writer.WriteBytes(dst, data, 0o644); err != nil {
			return fmt.Errorf("restore %s: %w", dst, err)
		}
	}

	m.log.Info("store restored from backup",
		zap.String("token", token),
		zap.String("preRestore", preToken))
	return nil
}

// lookupLocked resolves a timestamp token to the tag of an existing backup.
func (m *Manager) lookupLocked(token string) (tag string, found bool, err error) {
	if _, perr := time.ParseInLocation(VersionLayout, token, time.Local); perr == nil {
		ok, err := afero.Exists(m.fs, filepath.Join(m.dir, m.bundleName(m.storePath, "", token)))
		if err != nil || ok {
			return "", ok, err
		}
	}
	if _, perr := time.ParseInLocation(DailyLayout, token, time.Local); perr == nil {
		ok, err := afero.Exists(m.fs, filepath.Join(m.dir, m.bundleName(m.storePath, dailyTag, token)))
		if err != nil || ok {
			return dailyTag, ok, err
		}
	}
	return "", false, nil
}

// rotateLocked enforces the retention policy: at most MaxVersionBackups
// version bundles, no daily bundle older than MaxDailyBackupDays days.
// Pre-restore snapshots are never rotated.
func (m *Manager) rotateLocked(now time.Time) error {
	infos, err := m.listLocked()
	if err != nil {
		return err
	}

	var versions []Info
	for _, info := range infos {
		if info.IsDaily {
			cutoff := now.AddDate(0, 0, -m.opts.MaxDailyBackupDays)
			if info.Timestamp.Before(cutoff) {
				m.removeBundle(info, dailyTag)
			}
			continue
		}
		versions = append(versions, info)
	}

	// infos are newest-first, so everything past the cap is oldest.
	for _, info := range versions[min(len(versions), m.opts.MaxVersionBackups):] {
		m.removeBundle(info, "")
	}
	return nil
}

// removeBundle deletes a backup and its companion files.
func (m *Manager) removeBundle(info Info, tag string) {
	token := info.Token()
	files := append([]string{m.storePath}, m.opts.Companions...)
	for _, src := range files {
		path := filepath.Join(m.dir, m.bundleName(src, tag, token))
		if err := m.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.log.Warn("rotate: remove backup failed", zap.String("path", path), zap.Error(err))
		}
	}
}
