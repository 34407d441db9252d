package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

var base = time.Date(2026, 4, 1, 7, 0, 0, 0, time.UTC)

func TestHistoryAppendAndList(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	entries, err := ListHistory(db, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	last, err := LastTransition(db)
	require.NoError(t, err)
	assert.Nil(t, last)

	store := NewHistoryStore(db)
	ctx := context.Background()
	require.NoError(t, store.AppendHistory(ctx, model.HistoryEntry{Timestamp: base, Status: true}))
	require.NoError(t, store.AppendHistory(ctx, model.HistoryEntry{Timestamp: base.Add(1500 * time.Millisecond), Status: false}))
	require.NoError(t, store.AppendHistory(ctx, model.HistoryEntry{Timestamp: base.Add(time.Minute), Status: true}))

	t.Run("newest first", func(t *testing.T) {
		entries, err := ListHistory(db, 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.True(t, entries[0].Timestamp.Equal(base.Add(time.Minute)))
		assert.True(t, entries[1].Timestamp.Equal(base.Add(1500*time.Millisecond)))
		assert.False(t, entries[1].Status)
		assert.True(t, entries[2].Timestamp.Equal(base))
	})

	t.Run("limit", func(t *testing.T) {
		entries, err := ListHistory(db, 2)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("last transition", func(t *testing.T) {
		last, err := LastTransition(db)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.True(t, last.Status)
	})

	t.Run("prune", func(t *testing.T) {
		n, err := PruneHistory(db, base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		entries, err := ListHistory(db, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestHistoryStoreRecorder(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := NewHistoryStore(db)
	require.NoError(t, store.AppendHistory(context.Background(), model.HistoryEntry{Timestamp: base, Status: true}))

	entries, err := store.List(5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Status)
}

func TestHistoryStoreHonoursContext(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, NewHistoryStore(db).AppendHistory(ctx, model.HistoryEntry{Timestamp: base, Status: true}))

	entries, err := ListHistory(db, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenIsIdempotentOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "history.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewHistoryStore(db).AppendHistory(context.Background(), model.HistoryEntry{Timestamp: base, Status: true}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	entries, err := ListHistory(db, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "reopening keeps existing rows")
}
