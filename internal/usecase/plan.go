package usecase

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/feed"
	"ReaderSync/internal/ports"
	"ReaderSync/internal/retention"
)

// Plan is the outcome of the reconcile and decide phases without side effects.
type Plan struct {
	Folder       string
	Capacity     int
	GeneratedAt  time.Time
	Existing     int
	States       []domain.DeviceFileState
	Stale        []retention.StaleEntry
	Decision     retention.Decision
	Walk         feed.WalkStats
	FolderAbsent bool
}

// readOnlyDevice keeps a dry run from creating the target folder.
type readOnlyDevice struct {
	ports.DeviceStore
}

func (readOnlyDevice) Mkdir(context.Context, string) error { return nil }

// Plan runs reconcile and decide and reports what Run would do.
func (p *Pipeline) Plan(ctx context.Context) (Plan, error) {
	logger := p.logger.With("run_id", p.runID(), "dry_run", true)
	d, err := p.decide(ctx, readOnlyDevice{p.device}, logger)
	if err != nil {
		return Plan{}, err
	}
	if d.walkErr != nil {
		return Plan{}, d.walkErr
	}
	return Plan{
		Folder:       p.opts.Folder,
		Capacity:     p.opts.MaxSaveCount,
		GeneratedAt:  p.now().UTC(),
		Existing:     len(d.snapshot.Existing),
		States:       d.snapshot.States,
		Stale:        d.stale,
		Decision:     d.decision,
		Walk:         d.walk,
		FolderAbsent: d.snapshot.Created,
	}, nil
}

// WritePlan prints a plan as aligned text.
func WritePlan(w io.Writer, plan Plan) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "folder:\t%s\n", plan.Folder)
	if plan.FolderAbsent {
		fmt.Fprintf(tw, "\t(does not exist yet)\n")
	}
	fmt.Fprintf(tw, "capacity:\t%d\n", plan.Capacity)
	fmt.Fprintf(tw, "on device:\t%d\n", plan.Existing)
	fmt.Fprintf(tw, "fetched:\t%d (%d pages, stop: %s)\n", plan.Walk.Fetched, plan.Walk.Pages, plan.Walk.Reason)
	fmt.Fprintf(tw, "stale unread:\t%d\n", len(plan.Stale))
	fmt.Fprintf(tw, "skipped:\t%d on device, %d delivered before, %d duplicate, %d no space\n",
		plan.Decision.OnDevice, plan.Decision.PreviouslyDelivered, plan.Decision.Duplicates, plan.Decision.NoSpace)

	fmt.Fprintf(tw, "\nADMIT\tID\tNAME\tEVICTS\n")
	for i, adm := range plan.Decision.Admissions {
		evicts := "-"
		if adm.Evicts != nil {
			evicts = adm.Evicts.Path
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, adm.Candidate.ID, adm.Candidate.RenderedName, evicts)
	}

	fmt.Fprintf(tw, "\nDELETE\tREASON\n")
	for _, st := range plan.Decision.ReadDeletions {
		fmt.Fprintf(tw, "%s\tread\n", st.Path)
	}
	for _, e := range plan.Decision.Evictions() {
		fmt.Fprintf(tw, "%s\tstale since %s\n", e.Path, e.AddedAt.UTC().Format(time.RFC3339))
	}

	if len(plan.States) > 0 {
		fmt.Fprintf(tw, "\nFILE\tSTATE\tPROGRESS\n")
		for _, st := range plan.States {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Name, st.Classify(), progress(st))
		}
	}
	return tw.Flush()
}

func progress(st domain.DeviceFileState) string {
	if st.NumPages < 1 {
		return fmt.Sprintf("page %d", st.CurrentPage+1)
	}
	return fmt.Sprintf("%d/%d", st.CurrentPage+1, st.NumPages)
}
