package undo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/undo"
)

func TestSQLiteHistoryStoreRoundTrip(t *testing.T) {
	s, err := undo.NewSQLiteHistoryStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	h, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, h, "fresh database has no record")

	saved := &undo.History{
		Version:       1,
		StoreChecksum: "00000000deadbeef",
		StoreSize:     512,
		UndoStack:     []undo.Command{undo.NewBatch("setup", nil)},
		SavedAt:       time.Now().UTC(),
	}
	require.NoError(t, s.Save(saved))

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.StoreChecksum, got.StoreChecksum)
	assert.Equal(t, saved.StoreSize, got.StoreSize)
	require.Len(t, got.UndoStack, 1)
	assert.Equal(t, "setup", got.UndoStack[0].Description)

	// Saving again overwrites the single row rather than appending.
	saved.StoreChecksum = "00000000cafef00d"
	require.NoError(t, s.Save(saved))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "00000000cafef00d", got.StoreChecksum)

	require.NoError(t, s.Clear())
	got, err = s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}
