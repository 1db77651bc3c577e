package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

// Scheduler wires the interval driver with the sync pipeline.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = pipeline.logger
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler. A trigger arriving while a run
// is still in progress is dropped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if !s.begin() {
			s.logger.Warn("previous sync still running, skipping trigger", "trigger", trigger)
			return
		}
		defer s.end()

		if _, err := s.pipeline.Run(ctx); err != nil {
			s.logger.Error("scheduled sync failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Notifiers fans a run report out to several channels.
type Notifiers []ports.Notifier

// PublishReport delivers to every notifier and joins their errors.
func (n Notifiers) PublishReport(ctx context.Context, report domain.RunReport) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.PublishReport(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
