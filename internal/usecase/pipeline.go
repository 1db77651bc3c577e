package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/feed"
	"ReaderSync/internal/ledger"
	"ReaderSync/internal/ports"
	"ReaderSync/internal/reconcile"
	"ReaderSync/internal/retention"
)

// MissingOutputPolicy controls what happens when the renderer reports success but wrote nothing.
type MissingOutputPolicy string

const (
	MissingOutputSkip  MissingOutputPolicy = "skip"
	MissingOutputRetry MissingOutputPolicy = "retry"
	MissingOutputFail  MissingOutputPolicy = "fail"
)

// ParseMissingOutputPolicy accepts skip, retry or fail; empty means skip.
func ParseMissingOutputPolicy(v string) (MissingOutputPolicy, error) {
	switch MissingOutputPolicy(v) {
	case "", MissingOutputSkip:
		return MissingOutputSkip, nil
	case MissingOutputRetry, MissingOutputFail:
		return MissingOutputPolicy(v), nil
	}
	return "", fmt.Errorf("unknown missing output policy %q", v)
}

var errMissingOutput = errors.New("renderer produced no output")

// Options tune one sync run.
type Options struct {
	Folder            string
	MaxSaveCount      int
	DeleteAlreadyRead bool
	UnreadStaleHours  int
	UploadDelay       time.Duration
	RenderRetries     int
	MissingOutput     MissingOutputPolicy
	// WorkDir holds rendered files until upload; empty uses a fresh temp dir per run.
	WorkDir string
	Feed    feed.Options
}

// PipelineDeps wires all driven adapters into the sync pipeline.
type PipelineDeps struct {
	Feed     ports.FeedSource
	Device   ports.DeviceStore
	Renderer ports.PageRenderer
	Ledger   ports.LedgerStore
	Reauth   ports.Reauthenticator
	Notifier ports.Notifier
	Logger   *slog.Logger
	Sleep    ports.Sleeper
	Now      func() time.Time
	RunID    func() string
}

// Pipeline implements the reconcile, decide, deliver, delete and persist workflow.
type Pipeline struct {
	feed     ports.FeedSource
	device   ports.DeviceStore
	renderer ports.PageRenderer
	store    ports.LedgerStore
	reauth   ports.Reauthenticator
	notifier ports.Notifier
	logger   *slog.Logger
	sleep    ports.Sleeper
	now      func() time.Time
	runID    func() string
	opts     Options
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, opts Options) *Pipeline {
	p := &Pipeline{
		feed:     deps.Feed,
		device:   deps.Device,
		renderer: deps.Renderer,
		store:    deps.Ledger,
		reauth:   deps.Reauth,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		sleep:    deps.Sleep,
		now:      deps.Now,
		runID:    deps.RunID,
		opts:     opts,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if p.sleep == nil {
		p.sleep = ports.Sleep
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.runID == nil {
		p.runID = uuid.NewString
	}
	if p.opts.MissingOutput == "" {
		p.opts.MissingOutput = MissingOutputSkip
	}
	return p
}

// decided is the shared result of the reconcile and decide phases.
type decided struct {
	ledger   *ledger.Ledger
	snapshot reconcile.Snapshot
	stale    []retention.StaleEntry
	decision retention.Decision
	walk     feed.WalkStats
	walkErr  error
}

func (p *Pipeline) decide(ctx context.Context, device ports.DeviceStore, logger *slog.Logger) (decided, error) {
	var out decided

	led, err := ledger.Open(ctx, p.store,
		ledger.WithClock(p.now),
		ledger.WithLogger(logger.With("component", "ledger")))
	if err != nil {
		return out, err
	}
	out.ledger = led

	snap, err := reconcile.New(device, logger.With("component", "reconcile")).
		ListExisting(ctx, p.opts.Folder, led)
	if err != nil {
		return out, err
	}
	out.snapshot = snap
	logger.Info("device reconciled",
		"folder", p.opts.Folder, "existing", len(snap.Existing), "classified", len(snap.States),
		"ignored", snap.Ignored, "stat_failures", snap.StatFailures)

	stale := retention.BuildStaleIndex(snap.States, led, p.opts.UnreadStaleHours, p.now())
	out.stale = stale.Entries()

	decider := retention.NewDecider(retention.Params{
		Capacity:          p.opts.MaxSaveCount,
		DeleteAlreadyRead: p.opts.DeleteAlreadyRead,
		UnreadStaleHours:  p.opts.UnreadStaleHours,
	}, retention.Inputs{
		Existing: snap.Existing,
		States:   snap.States,
		Ledger:   led,
		Stale:    stale,
	}, logger.With("component", "retention"))

	if decider.Saturated() {
		logger.Info("device is full and nothing is stale, skipping feed", "capacity", p.opts.MaxSaveCount)
		out.walk.Reason = feed.StopConsumer
	} else {
		paginator := feed.NewPaginator(p.feed, p.opts.Feed, p.sleep, logger.With("component", "feed"))
		out.walk, out.walkErr = paginator.Walk(ctx, func(c domain.Candidate) bool {
			decider.Offer(c)
			return !decider.Saturated()
		})
	}
	out.decision = decider.Decision()
	return out, nil
}

// Run executes one full sync. The report is always populated; the error joins every failure
// that marked the run failed.
func (p *Pipeline) Run(ctx context.Context) (domain.RunReport, error) {
	report := domain.RunReport{RunID: p.runID(), StartedAt: p.now().UTC()}
	logger := p.logger.With("run_id", report.RunID)
	logger.Info("sync started", "folder", p.opts.Folder, "capacity", p.opts.MaxSaveCount)

	var errs []error
	d, err := p.decide(ctx, p.device, logger)
	if err != nil {
		errs = append(errs, err)
		return p.finish(ctx, logger, report, errs), errors.Join(errs...)
	}
	report.Existing = len(d.snapshot.Existing)
	report.Fetched = d.walk.Fetched
	report.Dropped = d.decision.NoSpace

	authFailed := false
	if d.walkErr != nil {
		errs = append(errs, d.walkErr)
		authFailed = errors.Is(d.walkErr, domain.ErrAuthRequired)
		logger.Error("feed walk failed", "error", d.walkErr, "admitted_before_failure", len(d.decision.Admissions))
	}

	uploaded := map[domain.ArticleID]bool{}
	if !authFailed {
		deliverErr := p.deliver(ctx, logger, d, &report, uploaded)
		if deliverErr != nil {
			errs = append(errs, deliverErr)
			authFailed = errors.Is(deliverErr, domain.ErrAuthRequired)
		}
	}

	errs = append(errs, p.deleteAll(ctx, logger, d, &report, uploaded)...)

	if err := d.ledger.Save(context.WithoutCancel(ctx)); err != nil {
		logger.Error("ledger not persisted", "error", err)
		errs = append(errs, err)
	}

	if authFailed && p.reauth != nil {
		logger.Warn("authentication required, invoking re-authentication hook")
		if err := p.reauth.Reauthenticate(context.WithoutCancel(ctx)); err != nil {
			logger.Error("re-authentication failed", "error", err)
		}
	}

	return p.finish(ctx, logger, report, errs), errors.Join(errs...)
}

func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, report domain.RunReport, errs []error) domain.RunReport {
	report.FinishedAt = p.now().UTC()
	report.Status = domain.RunSucceeded
	if err := errors.Join(errs...); err != nil {
		report.Status = domain.RunFailed
		report.Error = err.Error()
	}
	logger.Info("sync finished",
		"status", report.Status, "delivered", len(report.Delivered), "failed", len(report.Failed),
		"deleted", len(report.Deleted), "delete_failures", len(report.DeleteFails), "dropped", report.Dropped)

	if p.notifier != nil {
		if err := p.notifier.PublishReport(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("publish run report", "error", err)
		}
	}
	return report
}

// deliver renders and uploads admissions in feed order. Per-item failures are recorded in the
// report; only auth failures and the fail policy stop the loop and return an error.
func (p *Pipeline) deliver(ctx context.Context, logger *slog.Logger, d decided, report *domain.RunReport, uploaded map[domain.ArticleID]bool) error {
	if len(d.decision.Admissions) == 0 {
		return nil
	}

	workDir := p.opts.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "readersync-")
		if err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
		defer os.RemoveAll(dir)
		workDir = dir
	} else if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	budget := ports.NewRetryBudget(p.opts.RenderRetries)
	for i, adm := range d.decision.Admissions {
		c := adm.Candidate
		if i > 0 {
			if err := p.sleep(ctx, p.opts.UploadDelay); err != nil {
				return err
			}
		}

		localPath := filepath.Join(workDir, c.RenderedName)
		pages, err := p.renderOnce(ctx, c, localPath, budget)
		switch {
		case errors.Is(err, domain.ErrAuthRequired):
			report.Failed = append(report.Failed, domain.FailedItem{ID: c.ID, Reason: err.Error()})
			return fmt.Errorf("render %s: %w", c.ID, err)
		case errors.Is(err, errMissingOutput) && p.opts.MissingOutput == MissingOutputFail:
			report.Failed = append(report.Failed, domain.FailedItem{ID: c.ID, Reason: err.Error()})
			return fmt.Errorf("render %s: %w: %v", c.ID, domain.ErrRenderFailure, err)
		case err != nil:
			logger.Warn("render failed, will retry next run", "id", c.ID, "url", c.SourceURL, "error", err)
			report.Failed = append(report.Failed, domain.FailedItem{ID: c.ID, Reason: err.Error()})
			continue
		}

		err = p.device.Put(ctx, localPath, p.opts.Folder)
		_ = os.Remove(localPath)
		if err != nil {
			logger.Warn("upload failed, will retry next run", "id", c.ID, "error", err)
			report.Failed = append(report.Failed, domain.FailedItem{ID: c.ID, Reason: err.Error()})
			continue
		}

		d.ledger.RecordDelivery(c.ID, ledger.Delivery{
			NumPages:    pages,
			SourceURL:   c.SourceURL,
			DisplayName: c.RenderedName,
		})
		uploaded[c.ID] = true
		report.Delivered = append(report.Delivered, domain.Delivery{Candidate: c, NumPages: pages})
		logger.Info("delivered article", "id", c.ID, "name", c.RenderedName, "pages", pages)
	}
	return nil
}

// renderOnce renders one candidate and applies the missing output policy.
func (p *Pipeline) renderOnce(ctx context.Context, c domain.Candidate, localPath string, budget *ports.RetryBudget) (int, error) {
	for {
		pages, err := p.renderer.Render(ctx, c.SourceURL, localPath, budget)
		if err != nil {
			_ = os.Remove(localPath)
			return 0, err
		}
		if fileReady(localPath) {
			return pages, nil
		}
		if p.opts.MissingOutput == MissingOutputRetry && budget.Spend() {
			p.logger.Warn("rendered file missing, retrying", "id", c.ID, "retries_left", budget.Remaining())
			continue
		}
		return 0, fmt.Errorf("%s: %w", c.SourceURL, errMissingOutput)
	}
}

func fileReady(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

type deletion struct {
	id   domain.ArticleID
	path string
}

// deletions lists fully-read paths, then evictions whose replacement was uploaded.
func deletions(dec retention.Decision, uploaded map[domain.ArticleID]bool) []deletion {
	seen := map[string]struct{}{}
	var out []deletion
	add := func(id domain.ArticleID, path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		out = append(out, deletion{id: id, path: path})
	}
	for _, st := range dec.ReadDeletions {
		add(st.ID, st.Path)
	}
	for _, adm := range dec.Admissions {
		if adm.Evicts != nil && uploaded[adm.Candidate.ID] {
			add(adm.Evicts.ID, adm.Evicts.Path)
		}
	}
	return out
}

func (p *Pipeline) deleteAll(ctx context.Context, logger *slog.Logger, d decided, report *domain.RunReport, uploaded map[domain.ArticleID]bool) []error {
	var errs []error
	for _, del := range deletions(d.decision, uploaded) {
		if err := ValidateDeletePath(p.opts.Folder, del.path); err != nil {
			logger.Error("refusing to delete", "path", del.path, "error", err)
			report.DeleteFails = append(report.DeleteFails, domain.FailedItem{ID: del.id, Path: del.path, Reason: err.Error()})
			errs = append(errs, err)
			continue
		}
		if err := p.device.Remove(ctx, del.path); err != nil {
			err = fmt.Errorf("remove %s: %w: %v", del.path, domain.ErrDeleteFailure, err)
			logger.Warn("delete failed", "path", del.path, "error", err)
			report.DeleteFails = append(report.DeleteFails, domain.FailedItem{ID: del.id, Path: del.path, Reason: err.Error()})
			continue
		}
		d.ledger.RecordDeletion(del.id)
		report.Deleted = append(report.Deleted, del.path)
		logger.Info("deleted article", "id", del.id, "path", del.path)
	}
	return errs
}
