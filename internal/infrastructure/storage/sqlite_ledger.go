package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

const ledgerTable = "ledger_entries"

var ledgerColumns = []string{"id", "num_pages", "canonical_url", "display_name", "added_at", "deleted_at"}

// SQLiteLedger persists the delivery ledger into a SQLite database.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

var _ ports.LedgerStore = (*SQLiteLedger)(nil)

// OpenSQLiteLedger opens (or creates) the database at path and applies migrations.
func OpenSQLiteLedger(path string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return openSQLite(path)
}

// OpenSQLiteLedgerMemory opens an in-memory ledger for tests.
func OpenSQLiteLedgerMemory() (*SQLiteLedger, error) {
	return openSQLite(":memory:")
}

func openSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps :memory: databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db, path: path}
	if err := l.configurePragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

// Close releases the database.
func (l *SQLiteLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Load reads every ledger row.
func (l *SQLiteLedger) Load(ctx context.Context) (map[domain.ArticleID]domain.LedgerEntry, error) {
	query, args, err := sq.Select(ledgerColumns...).From(ledgerTable).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	entries := make(map[domain.ArticleID]domain.LedgerEntry)
	for rows.Next() {
		var (
			id, url, name string
			pages         int
			added         int64
			deleted       sql.NullInt64
		)
		if err := rows.Scan(&id, &pages, &url, &name, &added, &deleted); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w: %v", domain.ErrLedgerCorrupt, err)
		}
		entry := domain.LedgerEntry{
			ID:          domain.ArticleID(id),
			NumPages:    pages,
			SourceURL:   url,
			DisplayName: name,
			AddedAt:     time.Unix(added, 0).UTC(),
		}
		if deleted.Valid {
			at := time.Unix(deleted.Int64, 0).UTC()
			entry.DeletedAt = &at
		}
		entries[entry.ID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entries, nil
}

// Save replaces the table contents inside one transaction.
func (l *SQLiteLedger) Save(ctx context.Context, entries map[domain.ArticleID]domain.LedgerEntry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w: %v", domain.ErrLedgerPersist, err)
	}

	del, args, err := sq.Delete(ledgerTable).ToSql()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("build delete: %w: %v", domain.ErrLedgerPersist, err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear ledger: %w: %v", domain.ErrLedgerPersist, err)
	}

	for id, e := range entries {
		var deleted any
		if e.DeletedAt != nil {
			deleted = e.DeletedAt.Unix()
		}
		ins, args, err := sq.Insert(ledgerTable).
			Columns(ledgerColumns...).
			Values(string(id), e.NumPages, e.SourceURL, e.DisplayName, e.AddedAt.Unix(), deleted).
			ToSql()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("build insert %s: %w: %v", id, domain.ErrLedgerPersist, err)
		}
		if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w: %v", id, domain.ErrLedgerPersist, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w: %v", domain.ErrLedgerPersist, err)
	}
	return nil
}

func (l *SQLiteLedger) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := l.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}
