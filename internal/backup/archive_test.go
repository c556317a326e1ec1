package backup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportArchive(t *testing.T) {
	m, fs, clock := setup(t, Options{})

	writeStore(t, fs, `{"rev":1}`)
	m.CreateBackup()
	clock.advance(time.Minute)
	writeStore(t, fs, `{"rev":2}`)
	m.CreateBackup()

	before, err := m.ListBackups()
	require.NoError(t, err)
	require.NotEmpty(t, before)

	archive := filepath.Join("deck", "backups.tar.zst")
	require.NoError(t, m.ExportArchive(archive))

	// Import into a fresh filesystem holding the same store path.
	fs2 := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs2, filepath.Join("deck", "tasks.json"), []byte("{}"), 0o644))
	data, err := afero.ReadFile(fs, archive)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs2, "import.tar.zst", data, 0o644))

	m2 := NewManager(fs2, filepath.Join("deck", "tasks.json"), Options{Now: clock.Now}, nil)
	require.NoError(t, m2.ImportArchive("import.tar.zst"))

	after, err := m2.ListBackups()
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))

	// Imported backups must be restorable.
	require.NoError(t, m2.RestoreBackup(after[0].Token()))
	restored, err := afero.ReadFile(fs2, filepath.Join("deck", "tasks.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"rev":2}`, string(restored))
}

func TestImportArchive_DoesNotOverwriteExisting(t *testing.T) {
	m, fs, _ := setup(t, Options{})

	writeStore(t, fs, `{"rev":1}`)
	m.CreateBackup()

	archive := filepath.Join("deck", "backups.tar.zst")
	require.NoError(t, m.ExportArchive(archive))

	infos, err := m.ListBackups()
	require.NoError(t, err)
	require.NotEmpty(t, infos)

	// Tamper with the on-disk backup, then re-import the archive: the
	// existing file must win.
	require.NoError(t, afero.WriteFile(fs, infos[0].FilePath, []byte("local"), 0o644))
	require.NoError(t, m.ImportArchive(archive))

	data, err := afero.ReadFile(fs, infos[0].FilePath)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}
