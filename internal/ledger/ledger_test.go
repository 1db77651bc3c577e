package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReaderSync/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), DefaultFileName))
	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStoreCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	require.ErrorIs(t, err, domain.ErrLedgerCorrupt)

	_, err = Open(context.Background(), NewFileStore(path))
	require.ErrorIs(t, err, domain.ErrLedgerCorrupt)
}

func TestFileStoreMismatchedKeyIsCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"1":{"id":"2","num_pages":3,"canonical_url":"u","added":1}}`), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	require.ErrorIs(t, err, domain.ErrLedgerCorrupt)
}

func TestFileStoreReadsLegacyDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	legacy := `{"123": {"id": "123", "num_pages": 7, "canonical_url": "https://example.substack.com/p/a", "added": 1700000000.25}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	entries, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries["123"]
	assert.Equal(t, 7, e.NumPages)
	assert.Equal(t, "https://example.substack.com/p/a", e.SourceURL)
	assert.Equal(t, int64(1700000000), e.AddedAt.Unix())
	assert.Nil(t, e.DeletedAt)
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", DefaultFileName)
	store := NewFileStore(path)

	deleted := time.Unix(1700003600, 0).UTC()
	want := map[domain.ArticleID]domain.LedgerEntry{
		"1": {ID: "1", NumPages: 3, SourceURL: "https://a/p/1", DisplayName: "A - One [1].pdf", AddedAt: time.Unix(1700000000, 0).UTC()},
		"2": {ID: "2", NumPages: 9, SourceURL: "https://a/p/2", DisplayName: "A - Two [2].pdf", AddedAt: time.Unix(1700000100, 0).UTC(), DeletedAt: &deleted},
	}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Save(ctx, got))
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, again)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStoreKeepsFractionalTimestamps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	legacy := `{"7": {"id": "7", "num_pages": 2, "canonical_url": "https://a/p/7", "added": 1700000000.75, "deleted": 1700003600.5}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	store := NewFileStore(path)
	first, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, time.Duration(first["7"].AddedAt.Nanosecond()))

	require.NoError(t, store.Save(ctx, first))
	second, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "1700000000.75")
	assert.Contains(t, string(raw), "1700003600.5")
}

func TestFileStoreSaveFailureIsPersistError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	err := NewFileStore(filepath.Join(blocker, DefaultFileName)).Save(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrLedgerPersist)
}

type failingStore struct {
	entries map[domain.ArticleID]domain.LedgerEntry
	saveErr error
}

func (s *failingStore) Load(context.Context) (map[domain.ArticleID]domain.LedgerEntry, error) {
	return s.entries, nil
}

func (s *failingStore) Save(context.Context, map[domain.ArticleID]domain.LedgerEntry) error {
	return s.saveErr
}

func TestLedgerRecordDeliveryAndDeletion(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, err := Open(context.Background(), &failingStore{}, WithClock(fixedClock(now)))
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	l.RecordDelivery("42", Delivery{NumPages: 5, SourceURL: "u", DisplayName: "P - T [42].pdf"})
	e, ok := l.Lookup("42")
	require.True(t, ok)
	assert.Equal(t, now, e.AddedAt)
	assert.False(t, e.Deleted())

	assert.True(t, l.RecordDeletion("42"))
	e, _ = l.Lookup("42")
	require.NotNil(t, e.DeletedAt)
	assert.Equal(t, now, *e.DeletedAt)
	assert.True(t, l.Has("42"), "deleted entries stay in the ledger")

	assert.False(t, l.RecordDeletion("missing"))
	assert.False(t, l.Has("missing"))
}

func TestLedgerSaveFailureKeepsEntries(t *testing.T) {
	t.Parallel()

	store := &failingStore{saveErr: errors.New("disk full")}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	l.RecordDelivery("7", Delivery{NumPages: 1})
	require.Error(t, l.Save(context.Background()))
	assert.True(t, l.Has("7"))
}

func TestLedgerEntriesOrdered(t *testing.T) {
	t.Parallel()

	base := time.Unix(1700000000, 0).UTC()
	store := &failingStore{entries: map[domain.ArticleID]domain.LedgerEntry{
		"b": {ID: "b", AddedAt: base},
		"a": {ID: "a", AddedAt: base},
		"c": {ID: "c", AddedAt: base.Add(-time.Hour)},
	}}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	var ids []domain.ArticleID
	for _, e := range l.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []domain.ArticleID{"c", "a", "b"}, ids)
}
