package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunReportSummary(t *testing.T) {
	t.Parallel()

	out := RunReport{
		RunID:     "run-1",
		Status:    RunFailed,
		Delivered: []Delivery{{Candidate: Candidate{RenderedName: "Letters - Post A [A].pdf"}, NumPages: 7}},
		Failed:    []FailedItem{{ID: "B", Reason: "timeout"}},
		Deleted:   []string{"Substack/Letters - Done [r1].pdf"},
		Error:     "save ledger: disk full",
	}.Summary()

	assert.Contains(t, out, "Sync run-1: failed\n")
	assert.Contains(t, out, "Delivered 1, failed 1, deleted 1, no space 0\n")
	assert.Contains(t, out, "+ Letters - Post A [A].pdf (7 pages)\n")
	assert.Contains(t, out, "! B: timeout\n")
	assert.Contains(t, out, "- Substack/Letters - Done [r1].pdf\n")
	assert.Contains(t, out, "Error: save ledger: disk full\n")
}
