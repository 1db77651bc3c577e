package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

// DefaultFileName is the ledger document name inside the config folder.
const DefaultFileName = "db_file.json"

// FileStore persists the ledger as a single JSON document.
type FileStore struct {
	path string
}

var _ ports.LedgerStore = (*FileStore)(nil)

// NewFileStore stores the ledger at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// record is the on-disk shape of one entry; added/deleted are unix seconds.
type record struct {
	ID           string   `json:"id"`
	NumPages     int      `json:"num_pages"`
	CanonicalURL string   `json:"canonical_url"`
	DisplayName  string   `json:"display_name,omitempty"`
	Added        float64  `json:"added"`
	Deleted      *float64 `json:"deleted,omitempty"`
}

// Load reads the document. A missing file yields an empty ledger.
func (s *FileStore) Load(_ context.Context) (map[domain.ArticleID]domain.LedgerEntry, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[domain.ArticleID]domain.LedgerEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var doc map[string]record
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %v", s.path, domain.ErrLedgerCorrupt, err)
	}

	entries := make(map[domain.ArticleID]domain.LedgerEntry, len(doc))
	for key, rec := range doc {
		id := rec.ID
		if id == "" {
			id = key
		}
		if id != key {
			return nil, fmt.Errorf("entry %q carries id %q: %w", key, id, domain.ErrLedgerCorrupt)
		}
		entry := domain.LedgerEntry{
			ID:          domain.ArticleID(id),
			NumPages:    rec.NumPages,
			SourceURL:   rec.CanonicalURL,
			DisplayName: rec.DisplayName,
			AddedAt:     fromUnix(rec.Added),
		}
		if rec.Deleted != nil {
			at := fromUnix(*rec.Deleted)
			entry.DeletedAt = &at
		}
		entries[entry.ID] = entry
	}
	return entries, nil
}

// Save replaces the document via temp file and rename so a crash never leaves it half written.
func (s *FileStore) Save(_ context.Context, entries map[domain.ArticleID]domain.LedgerEntry) error {
	doc := make(map[string]record, len(entries))
	for id, e := range entries {
		rec := record{
			ID:           string(id),
			NumPages:     e.NumPages,
			CanonicalURL: e.SourceURL,
			DisplayName:  e.DisplayName,
			Added:        toUnix(e.AddedAt),
		}
		if e.DeletedAt != nil {
			v := toUnix(*e.DeletedAt)
			rec.Deleted = &v
		}
		doc[string(id)] = rec
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w: %v", domain.ErrLedgerPersist, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w: %v", dir, domain.ErrLedgerPersist, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w: %v", domain.ErrLedgerPersist, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp ledger: %w: %v", domain.ErrLedgerPersist, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp ledger: %w: %v", domain.ErrLedgerPersist, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp ledger: %w: %v", domain.ErrLedgerPersist, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace ledger: %w: %v", domain.ErrLedgerPersist, err)
	}
	return nil
}

// toUnix keeps sub-second precision so documents with fractional timestamps survive a rewrite.
func toUnix(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func fromUnix(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
