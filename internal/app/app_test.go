package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReaderSync/internal/config"
	"ReaderSync/internal/domain"
	"ReaderSync/internal/ledger"
	"ReaderSync/internal/logging"
	"ReaderSync/internal/usecase"
)

var added = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	t.Setenv("READERSYNC_CONFIG", "")
	cfg, err := config.Load(config.Options{ConfigDir: t.TempDir()})
	require.NoError(t, err)
	cfg.Ledger.Backend = backend
	return cfg
}

func seedLedger(t *testing.T, a *Application) {
	t.Helper()
	deleted := added.Add(48 * time.Hour)
	store, closeStore, err := a.openLedgerStore()
	require.NoError(t, err)
	defer closeStore()

	require.NoError(t, store.Save(context.Background(), map[domain.ArticleID]domain.LedgerEntry{
		"101": {ID: "101", NumPages: 4, SourceURL: "https://a.substack.com/p/one", DisplayName: "A - One [101].pdf", AddedAt: added},
		"102": {ID: "102", NumPages: 9, SourceURL: "https://b.substack.com/p/two", AddedAt: added.Add(time.Hour), DeletedAt: &deleted},
	}))
}

func TestLedgerEntriesBothBackends(t *testing.T) {
	for _, backend := range []string{config.LedgerJSON, config.LedgerSQLite} {
		t.Run(backend, func(t *testing.T) {
			a := New(testConfig(t, backend), logging.Discard(), "test")
			seedLedger(t, a)

			live, err := a.LedgerEntries(context.Background(), false)
			require.NoError(t, err)
			require.Len(t, live, 1)
			assert.Equal(t, domain.ArticleID("101"), live[0].ID)

			all, err := a.LedgerEntries(context.Background(), true)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.True(t, all[1].Deleted())
		})
	}
}

func TestLedgerPathFollowsBackend(t *testing.T) {
	cfg := testConfig(t, config.LedgerJSON)
	assert.Equal(t, filepath.Join(cfg.ConfigDir, ledger.DefaultFileName), cfg.LedgerPath())
}

func TestWriteLedger(t *testing.T) {
	t.Parallel()

	deleted := added.Add(48 * time.Hour)
	var buf bytes.Buffer
	require.NoError(t, WriteLedger(&buf, []domain.LedgerEntry{
		{ID: "101", NumPages: 4, DisplayName: "A - One [101].pdf", AddedAt: added},
		{ID: "102", NumPages: 9, SourceURL: "https://b.substack.com/p/two", AddedAt: added, DeletedAt: &deleted},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "2026-10-01T09:30:00Z")
	assert.Contains(t, lines[1], "A - One [101].pdf")
	assert.Contains(t, lines[2], "2026-10-03T09:30:00Z")
	assert.Contains(t, lines[2], "https://b.substack.com/p/two")
}

func TestPipelineOptions(t *testing.T) {
	cfg := testConfig(t, config.LedgerJSON)
	cfg.Sync.MaxSaveCount = 7
	cfg.Sync.UnreadStaleHours = 24
	cfg.Feed.MaxFetchCount = 60
	cfg.Renderer.MissingOutput = "retry"

	opts, err := pipelineOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Substack", opts.Folder)
	assert.Equal(t, 7, opts.MaxSaveCount)
	assert.Equal(t, 24, opts.UnreadStaleHours)
	assert.Equal(t, 60, opts.Feed.MaxFetch)
	assert.Equal(t, usecase.MissingOutputRetry, opts.MissingOutput)

	cfg.Feed.MaxFetchCount = 0
	opts, err = pipelineOptions(cfg)
	require.NoError(t, err)
	assert.Zero(t, opts.Feed.MaxFetch, "zero budget is passed through")

	cfg.Renderer.MissingOutput = "explode"
	_, err = pipelineOptions(cfg)
	assert.Error(t, err)
}

func TestSyncFailsWithoutRmapi(t *testing.T) {
	cfg := testConfig(t, config.LedgerJSON)
	cfg.Device.RmapiPath = filepath.Join(t.TempDir(), "no-such-rmapi")

	_, err := New(cfg, logging.Discard(), "test").Sync(context.Background())
	assert.Error(t, err)
}
