// Package ledger keeps the durable record of every article ever delivered to the device.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

// Delivery is the metadata recorded when an article lands on the device.
type Delivery struct {
	NumPages    int
	SourceURL   string
	DisplayName string
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for addedAt and deletedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Ledger is the in-memory view of the persisted delivery record for one run.
type Ledger struct {
	store   ports.LedgerStore
	entries map[domain.ArticleID]domain.LedgerEntry
	now     func() time.Time
	logger  *slog.Logger
}

// Open loads the ledger from store. A corrupt ledger aborts the caller's run.
func Open(ctx context.Context, store ports.LedgerStore, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}

	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if entries == nil {
		entries = map[domain.ArticleID]domain.LedgerEntry{}
	}
	l.entries = entries
	l.logger.Debug("ledger loaded", "entries", len(entries))
	return l, nil
}

// Lookup returns the entry for id.
func (l *Ledger) Lookup(id domain.ArticleID) (domain.LedgerEntry, bool) {
	e, ok := l.entries[id]
	return e, ok
}

// Has reports whether id was ever delivered.
func (l *Ledger) Has(id domain.ArticleID) bool {
	_, ok := l.entries[id]
	return ok
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of all entries ordered by addedAt, then id.
func (l *Ledger) Entries() []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.LedgerEntry) int {
		if c := a.AddedAt.Compare(b.AddedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}

// RecordDelivery inserts or refreshes the entry for id with addedAt set to now.
func (l *Ledger) RecordDelivery(id domain.ArticleID, d Delivery) {
	l.entries[id] = domain.LedgerEntry{
		ID:          id,
		NumPages:    d.NumPages,
		SourceURL:   d.SourceURL,
		DisplayName: d.DisplayName,
		AddedAt:     l.now().UTC().Truncate(time.Second),
	}
}

// RecordDeletion stamps deletedAt on an existing entry. Unknown ids are logged and ignored.
func (l *Ledger) RecordDeletion(id domain.ArticleID) bool {
	e, ok := l.entries[id]
	if !ok {
		l.logger.Warn("deletion of unknown ledger id ignored", "id", id)
		return false
	}
	at := l.now().UTC().Truncate(time.Second)
	e.DeletedAt = &at
	l.entries[id] = e
	return true
}

// Save overwrites the persisted ledger. On failure the in-memory entries are kept.
func (l *Ledger) Save(ctx context.Context) error {
	if err := l.store.Save(ctx, l.entries); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	l.logger.Debug("ledger saved", "entries", len(l.entries))
	return nil
}
