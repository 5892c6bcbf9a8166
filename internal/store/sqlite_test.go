// ABOUTME: Tests for the SQLite journal implementation
// ABOUTME: Covers file creation, entry round trips, ordering, and duplicate detection

package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "journal.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist in nested directory")
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AppendEntry(ctx, logstore.Entry{ID: 0, Level: "INFO", Message: "boot", Timestamp: 1}))

	entries, err := store.LoadEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJournal_AppendAndLoad(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	want := []logstore.Entry{
		{ID: 0, Level: "INFO", Message: "boot", Timestamp: 1000},
		{ID: 1, Level: "WARN", Message: "low disk", Timestamp: 2000},
		{ID: 2, Level: "", Message: "", Timestamp: 2000},
	}
	for _, e := range want {
		require.NoError(t, store.AppendEntry(ctx, e))
	}

	got, err := store.LoadEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJournal_LoadEmpty(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.LoadEntries(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestJournal_LoadSortsByID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []uint64{2, 0, 1} {
		require.NoError(t, store.AppendEntry(ctx, logstore.Entry{ID: id, Level: "INFO", Message: "m", Timestamp: 1}))
	}

	got, err := store.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, uint64(i), e.ID)
	}
}

func TestJournal_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e := logstore.Entry{ID: 7, Level: "INFO", Message: "first", Timestamp: 1}
	require.NoError(t, store.AppendEntry(ctx, e))

	e.Message = "second"
	err := store.AppendEntry(ctx, e)
	assert.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestJournal_HighIDsRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	high := uint64(math.MaxUint64 - 1)
	require.NoError(t, store.AppendEntry(ctx, logstore.Entry{ID: 1, Level: "INFO", Message: "low", Timestamp: 1}))
	require.NoError(t, store.AppendEntry(ctx, logstore.Entry{ID: high, Level: "INFO", Message: "high", Timestamp: 2}))

	got, err := store.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].ID)
	assert.Equal(t, high, got[1].ID)
}

func TestJournal_ReopenReplaysIntoLogStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	ls, err := logstore.Open(ctx, logstore.Options{AuthKey: "s3cr3t", Journal: first})
	require.NoError(t, err)
	_, err = ls.Append(ctx, "s3cr3t", "INFO", "boot")
	require.NoError(t, err)
	_, err = ls.Append(ctx, "s3cr3t", "WARN", "low disk")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()

	reopened, err := logstore.Open(ctx, logstore.Options{AuthKey: "s3cr3t", Journal: second})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reopened.Count())

	e, ok := reopened.Get(1)
	require.True(t, ok)
	assert.Equal(t, "low disk", e.Message)

	id, err := reopened.Append(ctx, "s3cr3t", "ERROR", "after restart")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}

func TestJournal_CancelledAppendStaysInSync(t *testing.T) {
	journal := setupTestStore(t)
	logs := logstore.New(logstore.Options{AuthKey: "k", Journal: journal})

	for i := range 50 {
		ctx, cancel := context.WithCancel(context.Background())
		go cancel()
		_, _ = logs.Append(ctx, "k", "INFO", "racing a disconnect")

		rows, err := journal.LoadEntries(context.Background())
		require.NoError(t, err)
		require.Len(t, rows, int(logs.Count()), "iteration %d", i)
	}

	id, err := logs.Append(context.Background(), "k", "INFO", "after")
	require.NoError(t, err)
	assert.Equal(t, logs.Count()-1, id)

	rows, err := journal.LoadEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, int(logs.Count()))
}
