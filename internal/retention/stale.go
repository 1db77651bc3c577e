package retention

import (
	"slices"
	"strings"
	"time"

	"ReaderSync/internal/domain"
)

// StaleEntry is an unread device article old enough to be traded for a new one.
type StaleEntry struct {
	ID      domain.ArticleID
	Path    string
	AddedAt time.Time
}

func compareStale(a, b StaleEntry) int {
	if c := a.AddedAt.Compare(b.AddedAt); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

// StaleIndex keeps stale entries sorted oldest addedAt first, ties broken by ascending id.
type StaleIndex struct {
	entries []StaleEntry
	ids     map[domain.ArticleID]struct{}
}

// NewStaleIndex builds an index from entries in any order.
func NewStaleIndex(entries ...StaleEntry) *StaleIndex {
	idx := &StaleIndex{ids: map[domain.ArticleID]struct{}{}}
	for _, e := range entries {
		idx.Push(e)
	}
	return idx
}

// Push inserts e at its sorted position. An id already indexed is ignored.
func (s *StaleIndex) Push(e StaleEntry) bool {
	if _, dup := s.ids[e.ID]; dup {
		return false
	}
	pos, _ := slices.BinarySearchFunc(s.entries, e, compareStale)
	s.entries = slices.Insert(s.entries, pos, e)
	s.ids[e.ID] = struct{}{}
	return true
}

// PopOldest removes and returns the oldest entry.
func (s *StaleIndex) PopOldest() (StaleEntry, bool) {
	if len(s.entries) == 0 {
		return StaleEntry{}, false
	}
	e := s.entries[0]
	s.entries = s.entries[1:]
	delete(s.ids, e.ID)
	return e, true
}

// Len returns the number of indexed entries.
func (s *StaleIndex) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns a copy in eviction order.
func (s *StaleIndex) Entries() []StaleEntry {
	return slices.Clone(s.entries)
}

// Lookup resolves ledger entries by id.
type Lookup interface {
	Lookup(id domain.ArticleID) (domain.LedgerEntry, bool)
}

// BuildStaleIndex selects unread device files whose ledger addedAt is at least staleHours old.
// Files without a ledger entry have no age and are never stale. A negative staleHours disables eviction.
func BuildStaleIndex(states []domain.DeviceFileState, ledger Lookup, staleHours int, now time.Time) *StaleIndex {
	idx := NewStaleIndex()
	if staleHours < 0 || ledger == nil {
		return idx
	}
	threshold := time.Duration(staleHours) * time.Hour
	for _, st := range states {
		if st.Classify() != domain.ReadUnread {
			continue
		}
		entry, ok := ledger.Lookup(st.ID)
		if !ok || entry.AddedAt.IsZero() {
			continue
		}
		if now.Sub(entry.AddedAt) < threshold {
			continue
		}
		idx.Push(StaleEntry{ID: st.ID, Path: st.Path, AddedAt: entry.AddedAt})
	}
	return idx
}
