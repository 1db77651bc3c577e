package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReaderSync/internal/domain"
)

func openMemory(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := OpenSQLiteLedgerMemory()
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSQLiteLedgerEmpty(t *testing.T) {
	l := openMemory(t)

	entries, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	v, err := l.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestSQLiteLedgerRoundTrip(t *testing.T) {
	l := openMemory(t)
	ctx := context.Background()

	deleted := time.Unix(1700007200, 0).UTC()
	want := map[domain.ArticleID]domain.LedgerEntry{
		"10": {ID: "10", NumPages: 4, SourceURL: "https://x/p/10", DisplayName: "X - Ten [10].pdf", AddedAt: time.Unix(1700000000, 0).UTC()},
		"11": {ID: "11", NumPages: 2, SourceURL: "https://x/p/11", DisplayName: "X - Eleven [11].pdf", AddedAt: time.Unix(1700000500, 0).UTC(), DeletedAt: &deleted},
	}
	require.NoError(t, l.Save(ctx, want))

	got, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLiteLedgerSaveOverwrites(t *testing.T) {
	l := openMemory(t)
	ctx := context.Background()

	first := map[domain.ArticleID]domain.LedgerEntry{
		"a": {ID: "a", NumPages: 1, AddedAt: time.Unix(1, 0).UTC()},
		"b": {ID: "b", NumPages: 1, AddedAt: time.Unix(2, 0).UTC()},
	}
	require.NoError(t, l.Save(ctx, first))

	second := map[domain.ArticleID]domain.LedgerEntry{
		"b": {ID: "b", NumPages: 3, AddedAt: time.Unix(2, 0).UTC()},
	}
	require.NoError(t, l.Save(ctx, second))

	got, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestSQLiteLedgerReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger", "ledger.db")

	l, err := OpenSQLiteLedger(path)
	require.NoError(t, err)
	entries := map[domain.ArticleID]domain.LedgerEntry{
		"z": {ID: "z", NumPages: 8, AddedAt: time.Unix(1700000000, 0).UTC()},
	}
	require.NoError(t, l.Save(ctx, entries))
	require.NoError(t, l.Close())

	reopened, err := OpenSQLiteLedger(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}
