package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /healthz and /metrics.
type Server struct {
	metrics  *Metrics
	router   chi.Router
	version  string
	started  time.Time
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	http *http.Server
}

// NewServer builds the handler. interval is the expected gap between runs; health turns
// degraded once the last run is older than twice that.
func NewServer(metrics *Metrics, version string, interval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		metrics:  metrics,
		version:  version,
		started:  time.Now(),
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	s.router = r
}

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
	LastRunID string    `json:"last_run_id,omitempty"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastState string    `json:"last_state,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  s.now().Sub(s.started).Seconds(),
	}
	code := http.StatusOK

	if last, ok := s.metrics.Last(); ok {
		resp.LastRunID = last.RunID
		resp.LastRun = last.FinishedAt
		resp.LastState = string(last.Status)
		resp.LastError = last.Error
		if !last.Succeeded() {
			resp.Status = "degraded"
		}
		if s.interval > 0 && s.now().Sub(last.FinishedAt) > 2*s.interval {
			resp.Status = "stale"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) {
	s.http = &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		s.logger.Info("status server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", "error", err)
		}
	}()
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
