package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus enumerates the outcome of one sync run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Delivery describes one article uploaded during a run.
type Delivery struct {
	Candidate Candidate
	NumPages  int
}

// FailedItem pairs an article or path with the reason it was skipped.
type FailedItem struct {
	ID     ArticleID
	Path   string
	Reason string
}

// RunReport summarizes one sync run for logs, notifications and metrics.
type RunReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      RunStatus
	Existing    int
	Fetched     int
	Delivered   []Delivery
	Failed      []FailedItem
	Deleted     []string
	DeleteFails []FailedItem
	Dropped     int
	Error       string
}

// Succeeded reports whether nothing marked the run failed.
func (r RunReport) Succeeded() bool {
	return r.Status == RunSucceeded
}

// Summary renders the report as a short operator message.
func (r RunReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync %s: %s\n", r.RunID, r.Status)
	fmt.Fprintf(&b, "Delivered %d, failed %d, deleted %d, no space %d\n",
		len(r.Delivered), len(r.Failed), len(r.Deleted), r.Dropped)
	for _, d := range r.Delivered {
		fmt.Fprintf(&b, "+ %s (%d pages)\n", d.Candidate.RenderedName, d.NumPages)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "! %s: %s\n", f.ID, f.Reason)
	}
	for _, p := range r.Deleted {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	for _, f := range r.DeleteFails {
		fmt.Fprintf(&b, "! %s: %s\n", f.Path, f.Reason)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	}
	return b.String()
}
