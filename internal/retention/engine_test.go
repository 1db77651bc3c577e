package retention

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReaderSync/internal/domain"
)

type ledgerMap map[domain.ArticleID]domain.LedgerEntry

func (m ledgerMap) Lookup(id domain.ArticleID) (domain.LedgerEntry, bool) {
	e, ok := m[id]
	return e, ok
}

func (m ledgerMap) Has(id domain.ArticleID) bool {
	_, ok := m[id]
	return ok
}

var now = time.Date(2026, 10, 10, 8, 0, 0, 0, time.UTC)

func cand(id string) domain.Candidate {
	return domain.Candidate{
		ID:           domain.ArticleID(id),
		Title:        "T" + id,
		RenderedName: domain.DisplayName("Pub", "T"+id, domain.ArticleID(id)),
	}
}

func ids(adm []Admission) []domain.ArticleID {
	out := make([]domain.ArticleID, 0, len(adm))
	for _, a := range adm {
		out = append(out, a.Candidate.ID)
	}
	return out
}

func set(in ...string) map[domain.ArticleID]struct{} {
	out := map[domain.ArticleID]struct{}{}
	for _, id := range in {
		out[domain.ArticleID(id)] = struct{}{}
	}
	return out
}

func TestDecideFillsFreeCapacityInFeedOrder(t *testing.T) {
	t.Parallel()

	d := Decide(Params{Capacity: 2, UnreadStaleHours: 0}, Inputs{Ledger: ledgerMap{}},
		[]domain.Candidate{cand("A"), cand("B"), cand("C")}, nil)

	assert.Equal(t, []domain.ArticleID{"A", "B"}, ids(d.Admissions))
	assert.Empty(t, d.DeletePaths())
	assert.Equal(t, 1, d.NoSpace)
}

func TestDecideTradesStaleUnreadForNewArticle(t *testing.T) {
	t.Parallel()

	ledger := ledgerMap{"X": {ID: "X", AddedAt: now.Add(-time.Hour)}}
	states := []domain.DeviceFileState{{ID: "X", Path: "Substack/P [X].pdf", CurrentPage: 0, NumPages: 5}}
	stale := BuildStaleIndex(states, ledger, 0, now)
	require.Equal(t, 1, stale.Len())

	d := Decide(Params{Capacity: 1, UnreadStaleHours: 0},
		Inputs{Existing: set("X"), States: states, Ledger: ledger, Stale: stale},
		[]domain.Candidate{cand("Y")}, nil)

	assert.Equal(t, []domain.ArticleID{"Y"}, ids(d.Admissions))
	assert.Equal(t, []string{"Substack/P [X].pdf"}, d.DeletePaths())
	require.NotNil(t, d.Admissions[0].Evicts)
	assert.Equal(t, domain.ArticleID("X"), d.Admissions[0].Evicts.ID)
}

func TestDecideNeverReadmitsLedgerEntries(t *testing.T) {
	t.Parallel()

	deleted := now.Add(-48 * time.Hour)
	ledger := ledgerMap{"42": {ID: "42", AddedAt: now.Add(-72 * time.Hour), DeletedAt: &deleted}}

	dec := NewDecider(Params{Capacity: 5}, Inputs{Ledger: ledger}, nil)
	assert.Equal(t, VerdictPreviouslyDelivered, dec.Offer(cand("42")))
	assert.Equal(t, VerdictAdmitted, dec.Offer(cand("43")))

	d := dec.Decision()
	assert.Equal(t, []domain.ArticleID{"43"}, ids(d.Admissions))
	assert.Equal(t, 1, d.PreviouslyDelivered)
}

func TestDecideSkipsArticlesOnDeviceWithoutCountingThem(t *testing.T) {
	t.Parallel()

	dec := NewDecider(Params{Capacity: 2}, Inputs{Existing: set("A"), Ledger: ledgerMap{}}, nil)
	assert.Equal(t, VerdictOnDevice, dec.Offer(cand("A")))
	assert.Equal(t, VerdictAdmitted, dec.Offer(cand("B")))
	assert.True(t, dec.Saturated())
	assert.Equal(t, VerdictNoSpace, dec.Offer(cand("C")))
	assert.Equal(t, 2, dec.Occupancy())
}

func TestDecideRerunIsIdempotent(t *testing.T) {
	t.Parallel()

	candidates := []domain.Candidate{cand("A"), cand("B"), cand("C")}
	first := Decide(Params{Capacity: 3}, Inputs{Ledger: ledgerMap{}}, candidates, nil)
	require.Len(t, first.Admissions, 3)

	// After delivery the device and ledger both carry the admitted ids.
	ledger := ledgerMap{}
	existing := map[domain.ArticleID]struct{}{}
	for _, a := range first.Admissions {
		ledger[a.Candidate.ID] = domain.LedgerEntry{ID: a.Candidate.ID, AddedAt: now}
		existing[a.Candidate.ID] = struct{}{}
	}

	second := Decide(Params{Capacity: 3}, Inputs{Existing: existing, Ledger: ledger}, candidates, nil)
	assert.Empty(t, second.Admissions)
	assert.Empty(t, second.DeletePaths())
	assert.Equal(t, 3, second.OnDevice)
}

func TestDecideCapacityBoundHolds(t *testing.T) {
	t.Parallel()

	for capacity := 0; capacity <= 4; capacity++ {
		for existingN := 0; existingN <= 5; existingN++ {
			existing := map[domain.ArticleID]struct{}{}
			for i := range existingN {
				existing[domain.ArticleID(fmt.Sprintf("e%d", i))] = struct{}{}
			}
			var candidates []domain.Candidate
			for i := range 6 {
				candidates = append(candidates, cand(fmt.Sprintf("n%d", i)))
			}

			d := Decide(Params{Capacity: capacity, UnreadStaleHours: -1},
				Inputs{Existing: existing, Ledger: ledgerMap{}}, candidates, nil)

			want := max(0, capacity-existingN)
			assert.Len(t, d.Admissions, want, "capacity=%d existing=%d", capacity, existingN)
			if existingN <= capacity {
				assert.LessOrEqual(t, existingN+len(d.Admissions), capacity)
			}
		}
	}
}

func TestDecideEvictsOnlyWhenAdmitting(t *testing.T) {
	t.Parallel()

	ledger := ledgerMap{
		"old1": {ID: "old1", AddedAt: now.Add(-100 * time.Hour)},
		"old2": {ID: "old2", AddedAt: now.Add(-90 * time.Hour)},
		"old3": {ID: "old3", AddedAt: now.Add(-80 * time.Hour)},
	}
	var states []domain.DeviceFileState
	for _, id := range []string{"old1", "old2", "old3"} {
		states = append(states, domain.DeviceFileState{ID: domain.ArticleID(id), Path: "S/" + id, NumPages: 4})
	}
	in := func() Inputs {
		return Inputs{
			Existing: set("old1", "old2", "old3"),
			States:   states,
			Ledger:   ledger,
			Stale:    BuildStaleIndex(states, ledger, 24, now),
		}
	}

	none := Decide(Params{Capacity: 3, UnreadStaleHours: 24}, in(), nil, nil)
	assert.Empty(t, none.DeletePaths(), "no candidates means no speculative eviction")

	two := Decide(Params{Capacity: 3, UnreadStaleHours: 24}, in(), []domain.Candidate{cand("n1"), cand("n2")}, nil)
	assert.Equal(t, []domain.ArticleID{"n1", "n2"}, ids(two.Admissions))
	assert.Equal(t, []string{"S/old1", "S/old2"}, two.DeletePaths(), "oldest evicted first")
	assert.LessOrEqual(t, len(two.Evictions()), len(two.Admissions))
}

func TestDecideDisabledStalenessNeverEvicts(t *testing.T) {
	t.Parallel()

	ledger := ledgerMap{"X": {ID: "X", AddedAt: now.Add(-1000 * time.Hour)}}
	states := []domain.DeviceFileState{{ID: "X", Path: "S/X", NumPages: 3}}
	stale := BuildStaleIndex(states, ledger, 0, now)

	d := Decide(Params{Capacity: 1, UnreadStaleHours: -1},
		Inputs{Existing: set("X"), States: states, Ledger: ledger, Stale: stale},
		[]domain.Candidate{cand("Y")}, nil)
	assert.Empty(t, d.Admissions)
	assert.Empty(t, d.DeletePaths())
}

func TestDecideFullyReadDeletionIsIndependentOfCapacity(t *testing.T) {
	t.Parallel()

	states := []domain.DeviceFileState{
		{ID: "r1", Path: "S/r1", CurrentPage: 9, NumPages: 10},
		{ID: "r2", Path: "S/r2", CurrentPage: 0, NumPages: 1},
		{ID: "u1", Path: "S/u1", CurrentPage: 0, NumPages: 10},
		{ID: "p1", Path: "S/p1", CurrentPage: 3, NumPages: 10},
	}
	existing := set("r1", "r2", "u1", "p1")

	for _, capacity := range []int{0, 4, 10} {
		d := Decide(Params{Capacity: capacity, DeleteAlreadyRead: true, UnreadStaleHours: -1},
			Inputs{Existing: existing, States: states, Ledger: ledgerMap{}},
			[]domain.Candidate{cand("n")}, nil)
		assert.Equal(t, []string{"S/r1", "S/r2"}, d.DeletePaths(), "capacity=%d", capacity)
	}

	off := Decide(Params{Capacity: 10, DeleteAlreadyRead: false},
		Inputs{Existing: existing, States: states, Ledger: ledgerMap{}}, nil, nil)
	assert.Empty(t, off.DeletePaths())
}

func TestDecideDeletePathsAreDeduplicated(t *testing.T) {
	t.Parallel()

	d := Decision{
		ReadDeletions: []domain.DeviceFileState{{ID: "a", Path: "S/a"}},
		Admissions: []Admission{
			{Candidate: cand("n"), Evicts: &StaleEntry{ID: "a", Path: "S/a"}},
			{Candidate: cand("m"), Evicts: &StaleEntry{ID: "b", Path: "S/b"}},
		},
	}
	assert.Equal(t, []string{"S/a", "S/b"}, d.DeletePaths())
}

func TestDecideDuplicateCandidateInOneWalk(t *testing.T) {
	t.Parallel()

	dec := NewDecider(Params{Capacity: 5}, Inputs{}, nil)
	assert.Equal(t, VerdictAdmitted, dec.Offer(cand("A")))
	assert.Equal(t, VerdictDuplicate, dec.Offer(cand("A")))
	assert.Len(t, dec.Decision().Admissions, 1)
}

func TestSaturatedConsidersStaleBacklog(t *testing.T) {
	t.Parallel()

	stale := NewStaleIndex(StaleEntry{ID: "x", Path: "S/x", AddedAt: now})
	dec := NewDecider(Params{Capacity: 1, UnreadStaleHours: 0}, Inputs{Existing: set("x"), Stale: stale}, nil)
	assert.False(t, dec.Saturated())
	assert.Equal(t, VerdictAdmittedWithEviction, dec.Offer(cand("y")))
	assert.True(t, dec.Saturated())
}
