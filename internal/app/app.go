package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"ReaderSync/internal/config"
	"ReaderSync/internal/domain"
	"ReaderSync/internal/feed"
	"ReaderSync/internal/infrastructure/remarkable"
	"ReaderSync/internal/infrastructure/renderer"
	"ReaderSync/internal/infrastructure/scheduler"
	"ReaderSync/internal/infrastructure/status"
	"ReaderSync/internal/infrastructure/storage"
	"ReaderSync/internal/infrastructure/substack"
	"ReaderSync/internal/infrastructure/telegram"
	"ReaderSync/internal/ledger"
	"ReaderSync/internal/logging"
	"ReaderSync/internal/ports"
	"ReaderSync/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	version string
}

// New builds an application instance. Nothing is opened until a command runs.
func New(cfg config.Config, baseLogger *slog.Logger, version string) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	return &Application{cfg: cfg, logger: baseLogger, version: version}
}

// Sync performs one run and returns its report.
func (a *Application) Sync(ctx context.Context) (domain.RunReport, error) {
	pipeline, closeAll, err := a.buildPipeline(ctx)
	if err != nil {
		return domain.RunReport{}, err
	}
	defer closeAll()

	return pipeline.Run(ctx)
}

// Plan computes what a run would do and writes it to w without touching the device.
func (a *Application) Plan(ctx context.Context, w io.Writer) error {
	pipeline, closeAll, err := a.buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	plan, err := pipeline.Plan(ctx)
	if err != nil {
		return err
	}
	return usecase.WritePlan(w, plan)
}

// Watch runs the pipeline every interval and serves health and metrics until ctx is done.
func (a *Application) Watch(ctx context.Context) error {
	metrics := status.NewMetrics()
	pipeline, closeAll, err := a.buildPipeline(ctx, metrics)
	if err != nil {
		return err
	}
	defer closeAll()

	interval := a.cfg.Watch.Interval
	sched := usecase.NewScheduler(scheduler.NewIntervalScheduler(interval), pipeline, a.logger.With("component", "scheduler"))

	var srv *status.Server
	if a.cfg.Watch.Listen != "" {
		srv = status.NewServer(metrics, a.version, interval, a.logger.With("component", "status"))
		srv.Start(a.cfg.Watch.Listen)
	}

	a.logger.Info("watch mode started", "interval", interval, "listen", a.cfg.Watch.Listen)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := sched.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop status server: %w", err))
		}
	}
	a.logger.Info("watch mode stopped")
	return errors.Join(errs...)
}

// Login follows a Substack magic link and stores the session cookies.
func (a *Application) Login(ctx context.Context, loginURL string) error {
	client, err := a.newFeedClient()
	if err != nil {
		return err
	}
	if err := client.Login(ctx, loginURL); err != nil {
		return err
	}
	a.logger.Info("session stored", "file", a.cfg.CookiePath())
	return nil
}

// LedgerEntries loads the ledger, oldest delivery first. Deleted entries are kept only
// when includeDeleted is set.
func (a *Application) LedgerEntries(ctx context.Context, includeDeleted bool) ([]domain.LedgerEntry, error) {
	store, closeStore, err := a.openLedgerStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()

	led, err := ledger.Open(ctx, store, ledger.WithLogger(a.logger.With("component", "ledger")))
	if err != nil {
		return nil, err
	}

	entries := led.Entries()
	if includeDeleted {
		return entries, nil
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.Deleted() {
			out = append(out, e)
		}
	}
	return out, nil
}

// WriteLedger prints entries as an aligned table.
func WriteLedger(w io.Writer, entries []domain.LedgerEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPAGES\tADDED\tDELETED\tNAME")
	for _, e := range entries {
		deleted := "-"
		if e.DeletedAt != nil {
			deleted = e.DeletedAt.UTC().Format(time.RFC3339)
		}
		name := e.DisplayName
		if name == "" {
			name = e.SourceURL
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", e.ID, e.NumPages, e.AddedAt.UTC().Format(time.RFC3339), deleted, name)
	}
	return tw.Flush()
}

// buildPipeline opens every adapter a run needs. extra notifiers receive the run report
// alongside Telegram.
func (a *Application) buildPipeline(ctx context.Context, extra ...ports.Notifier) (*usecase.Pipeline, func(), error) {
	opts, err := pipelineOptions(a.cfg)
	if err != nil {
		return nil, nil, err
	}

	device := remarkable.NewDevice(remarkable.ExecRunner{Binary: a.cfg.Device.RmapiPath}, a.logger.With("component", "rmapi"))
	if err := device.CheckBinary(ctx); err != nil {
		return nil, nil, err
	}

	client, err := a.newFeedClient()
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := a.openLedgerStore()
	if err != nil {
		return nil, nil, err
	}

	chrome := renderer.NewChrome(renderer.Config{
		ExecPath:        a.cfg.Renderer.ChromePath,
		Timeout:         a.cfg.Renderer.Timeout,
		PaperWidth:      a.cfg.Renderer.PaperWidth,
		PaperHeight:     a.cfg.Renderer.PaperHeight,
		MinArticleChars: a.cfg.Renderer.MinArticleChars,
		LoginRetryDelay: a.cfg.Renderer.LoginRetryDelay,
	}, client.Jar(), a.logger.With("component", "renderer"))

	notifiers := usecase.Notifiers(extra)
	if tg := a.cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifiers = append(notifiers, telegram.NewNotifier(tg.BotToken, tg.ChatID, telegram.WithOnlyOnChanges(tg.OnlyOnChanges)))
	}

	deps := usecase.PipelineDeps{
		Feed:     client,
		Device:   device,
		Renderer: chrome,
		Ledger:   store,
		Notifier: notifiers,
		Logger:   a.logger.With("component", "pipeline"),
	}
	if hook := substack.NewCommandHook(a.cfg.Substack.ReauthCommand, a.logger.With("component", "reauth")); hook != nil {
		deps.Reauth = hook
	}

	return usecase.NewPipeline(deps, opts), closeStore, nil
}

func (a *Application) newFeedClient() (*substack.Client, error) {
	return substack.NewClient(substack.Config{
		BaseURL:    a.cfg.Substack.BaseURL,
		InboxType:  a.cfg.Substack.InboxType,
		CookieFile: a.cfg.CookiePath(),
		Timeout:    a.cfg.Substack.Timeout,
	}, a.logger.With("component", "substack"))
}

// openLedgerStore returns the configured backend and its release func.
func (a *Application) openLedgerStore() (ports.LedgerStore, func(), error) {
	path := a.cfg.LedgerPath()
	switch a.cfg.Ledger.Backend {
	case config.LedgerSQLite:
		db, err := storage.OpenSQLiteLedger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ledger %s: %w", path, err)
		}
		return db, func() {
			if err := db.Close(); err != nil {
				a.logger.Warn("close ledger", "error", err)
			}
		}, nil
	case config.LedgerJSON, "":
		return ledger.NewFileStore(path), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", a.cfg.Ledger.Backend)
	}
}

func pipelineOptions(cfg config.Config) (usecase.Options, error) {
	policy, err := usecase.ParseMissingOutputPolicy(cfg.Renderer.MissingOutput)
	if err != nil {
		return usecase.Options{}, err
	}
	return usecase.Options{
		Folder:            cfg.Sync.Folder,
		MaxSaveCount:      cfg.Sync.MaxSaveCount,
		DeleteAlreadyRead: cfg.Sync.DeleteAlreadyRead,
		UnreadStaleHours:  cfg.Sync.UnreadStaleHours,
		UploadDelay:       cfg.Sync.UploadDelay,
		RenderRetries:     cfg.Renderer.Retries,
		MissingOutput:     policy,
		WorkDir:           cfg.Sync.WorkDir,
		Feed: feed.Options{
			PageSize:         cfg.Feed.PageSize,
			MaxFetch:         cfg.Feed.MaxFetchCount,
			PageDelay:        cfg.Feed.PageDelay,
			RateLimitBackoff: cfg.Feed.RateLimitBackoff,
			MaxAttempts:      cfg.Feed.MaxAttempts,
		},
	}, nil
}
