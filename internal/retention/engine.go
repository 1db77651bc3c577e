// Package retention decides which feed candidates to admit onto the device and which
// device files to delete, under a fixed capacity and an age-based staleness rule.
package retention

import (
	"io"
	"log/slog"
	"slices"

	"ReaderSync/internal/domain"
)

// Params configure one decision pass.
type Params struct {
	Capacity          int
	DeleteAlreadyRead bool
	// UnreadStaleHours < 0 disables staleness eviction; 0 evicts any unread article on demand.
	UnreadStaleHours int
}

// Inputs are the per-run facts the engine decides over.
type Inputs struct {
	Existing map[domain.ArticleID]struct{}
	States   []domain.DeviceFileState
	Ledger   interface {
		Has(id domain.ArticleID) bool
	}
	Stale *StaleIndex
}

// Verdict is the outcome of offering one candidate.
type Verdict string

const (
	VerdictOnDevice             Verdict = "on_device"
	VerdictPreviouslyDelivered  Verdict = "previously_delivered"
	VerdictDuplicate            Verdict = "duplicate"
	VerdictAdmitted             Verdict = "admitted"
	VerdictAdmittedWithEviction Verdict = "admitted_with_eviction"
	VerdictNoSpace              Verdict = "no_space"
)

// Admission is a candidate selected for delivery, with the stale entry it displaces if any.
type Admission struct {
	Candidate domain.Candidate
	Evicts    *StaleEntry
}

// Decision is the engine output for one run.
type Decision struct {
	Admissions    []Admission
	ReadDeletions []domain.DeviceFileState

	OnDevice            int
	PreviouslyDelivered int
	Duplicates          int
	NoSpace             int
}

// Evictions returns the stale entries traded for admissions, in admission order.
func (d Decision) Evictions() []StaleEntry {
	var out []StaleEntry
	for _, a := range d.Admissions {
		if a.Evicts != nil {
			out = append(out, *a.Evicts)
		}
	}
	return out
}

// DeletePaths returns fully-read paths followed by staleness evictions, without duplicates.
func (d Decision) DeletePaths() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, st := range d.ReadDeletions {
		add(st.Path)
	}
	for _, e := range d.Evictions() {
		add(e.Path)
	}
	return out
}

// Decider applies the admission rules to candidates streamed in feed order.
type Decider struct {
	params   Params
	existing map[domain.ArticleID]struct{}
	ledger   interface{ Has(domain.ArticleID) bool }
	stale    *StaleIndex
	logger   *slog.Logger

	offered   map[domain.ArticleID]struct{}
	effective int
	decision  Decision
}

// NewDecider prepares a decision pass. The fully-read hygiene set is computed up front
// and does not depend on capacity.
func NewDecider(params Params, in Inputs, logger *slog.Logger) *Decider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	existing := in.Existing
	if existing == nil {
		existing = map[domain.ArticleID]struct{}{}
	}
	stale := in.Stale
	if stale == nil || params.UnreadStaleHours < 0 {
		stale = NewStaleIndex()
	}

	d := &Decider{
		params:    params,
		existing:  existing,
		ledger:    in.Ledger,
		stale:     stale,
		logger:    logger,
		offered:   map[domain.ArticleID]struct{}{},
		effective: len(existing),
	}

	if params.DeleteAlreadyRead {
		for _, st := range in.States {
			if st.Classify() == domain.ReadFully {
				logger.Info("will delete already read article", "id", st.ID, "path", st.Path)
				d.decision.ReadDeletions = append(d.decision.ReadDeletions, st)
			}
		}
		slices.SortFunc(d.decision.ReadDeletions, func(a, b domain.DeviceFileState) int {
			switch {
			case a.Path < b.Path:
				return -1
			case a.Path > b.Path:
				return 1
			}
			return 0
		})
	}
	return d
}

// Offer decides a single candidate.
func (d *Decider) Offer(c domain.Candidate) Verdict {
	if _, ok := d.existing[c.ID]; ok {
		d.decision.OnDevice++
		d.logger.Debug("already on device", "id", c.ID, "name", c.RenderedName)
		return VerdictOnDevice
	}
	if d.ledger != nil && d.ledger.Has(c.ID) {
		d.decision.PreviouslyDelivered++
		d.logger.Debug("delivered before, not re-admitting", "id", c.ID)
		return VerdictPreviouslyDelivered
	}
	if _, ok := d.offered[c.ID]; ok {
		d.decision.Duplicates++
		return VerdictDuplicate
	}
	d.offered[c.ID] = struct{}{}

	if d.used() < d.params.Capacity {
		d.decision.Admissions = append(d.decision.Admissions, Admission{Candidate: c})
		d.logger.Info("found new article", "id", c.ID, "name", c.RenderedName)
		return VerdictAdmitted
	}

	if d.params.UnreadStaleHours >= 0 {
		if victim, ok := d.stale.PopOldest(); ok {
			d.effective--
			d.decision.Admissions = append(d.decision.Admissions, Admission{Candidate: c, Evicts: &victim})
			d.logger.Info("found new article, evicting stale unread one",
				"id", c.ID, "name", c.RenderedName, "evict_id", victim.ID, "evict_path", victim.Path)
			return VerdictAdmittedWithEviction
		}
	}

	d.decision.NoSpace++
	d.logger.Info("no space for new article", "id", c.ID, "name", c.RenderedName)
	return VerdictNoSpace
}

// Saturated reports whether no further candidate could be admitted.
func (d *Decider) Saturated() bool {
	if d.used() < d.params.Capacity {
		return false
	}
	return d.params.UnreadStaleHours < 0 || d.stale.Len() == 0
}

// Occupancy returns existing minus evicted plus admitted.
func (d *Decider) Occupancy() int {
	return d.used()
}

// Decision returns the accumulated result.
func (d *Decider) Decision() Decision {
	out := d.decision
	out.Admissions = slices.Clone(d.decision.Admissions)
	out.ReadDeletions = slices.Clone(d.decision.ReadDeletions)
	return out
}

func (d *Decider) used() int {
	return d.effective + len(d.decision.Admissions)
}

// Decide runs a full pass over an already materialized candidate list.
func Decide(params Params, in Inputs, candidates []domain.Candidate, logger *slog.Logger) Decision {
	d := NewDecider(params, in, logger)
	for _, c := range candidates {
		d.Offer(c)
	}
	return d.Decision()
}
