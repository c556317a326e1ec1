package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ExportArchive bundles every backup (version, daily and pre-restore) into a
// single zstd-compressed tar archive at path, for moving a backup set to
// another machine or keeping cold copies.
func (m *Manager) ExportArchive(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no backups to export: %s", m.dir)
		}
		return fmt.Errorf("read backup directory: %w", err)
	}

	out, err := m.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", path, err)
	}
	defer func() { _ = out.Close() }()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := afero.ReadFile(m.fs, filepath.Join(m.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read backup %s: %w", e.Name(), err)
		}
		hdr := &tar.Header{
			Name:    e.Name(),
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: e.ModTime(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header for %s: %w", e.Name(), err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("write tar entry for %s: %w", e.Name(), err)
		}
		count++
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalize tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zstd stream: %w", err)
	}

	m.log.Info("backups exported", zap.String("archive", path), zap.Int("files", count))
	return nil
}

// ImportArchive unpacks an archive produced by ExportArchive into the backup
// directory. Existing files are not overwritten; entries with path
// separators are rejected so an archive cannot write outside the backup
// directory.
func (m *Manager) ImportArchive(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, err := m.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}
	defer func() { _ = in.Close() }()

	zr, err := zstd.NewReader(in)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	tr := tar.NewReader(zr)
	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		name := hdr.Name
		if name != filepath.Base(name) || strings.Contains(name, "..") {
			return fmt.Errorf("archive entry has unsafe name: %q", name)
		}
		dst := filepath.Join(m.dir, name)
		if ok, _ := afero.Exists(m.fs, dst); ok {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
		if err != nil {
			return fmt.Errorf("read tar entry %s: %w", name, err)
		}
		if err := m.writer.WriteBytes(dst, data, 0o644); err != nil {
			return fmt.Errorf("write backup %s: %w", dst, err)
		}
		if !hdr.ModTime.IsZero() {
			_ = m.fs.Chtimes(dst, time.Now(), hdr.ModTime)
		}
		count++
	}

	m.log.Info("backups imported", zap.String("archive", path), zap.Int("files", count))
	return nil
}
