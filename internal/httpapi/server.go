// Package httpapi is the HTTP bridge between the board service and its
// clients: the web UI, the CLI in remote mode, and agents.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/internal/observability"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of the bridge. Alerts, Metrics, MetricsHandler
// and Checks are optional.
type Deps struct {
	Board          core.BoardService
	Alerts         observability.AlertEngine
	Metrics        observability.MetricsCalculator
	MetricsHandler http.Handler
	Checks         map[string]HealthCheck
	Logger         *slog.Logger
}

// Server serves the board REST API.
type Server struct {
	board          core.BoardService
	alerts         observability.AlertEngine
	metrics        observability.MetricsCalculator
	metricsHandler http.Handler
	checks         map[string]HealthCheck
	logger         *slog.Logger
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		board:          deps.Board,
		alerts:         deps.Alerts,
		metrics:        deps.Metrics,
		metricsHandler: deps.MetricsHandler,
		checks:         deps.Checks,
		logger:         deps.Logger,
	}
}

// Handler returns the routed handler wrapped in logging and recovery
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("POST /api/tasks", s.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	mux.HandleFunc("PUT /api/tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.removeTask)
	mux.HandleFunc("POST /api/tasks/{id}/comment", s.addComment)
	mux.HandleFunc("POST /api/tasks/{id}/time", s.logTime)
	mux.HandleFunc("POST /api/tasks/{id}/assign", s.assignTask)
	mux.HandleFunc("POST /api/tasks/{id}/auto-assign", s.autoAssignTask)
	mux.HandleFunc("POST /api/tasks/{id}/claim", s.claimTask)

	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("POST /api/agents", s.registerAgent)
	mux.HandleFunc("GET /api/agents/{id}", s.getAgent)
	mux.HandleFunc("PUT /api/agents/{id}", s.updateAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", s.removeAgent)
	mux.HandleFunc("POST /api/agents/{id}/heartbeat", s.heartbeat)
	mux.HandleFunc("GET /api/agents/{id}/next-task", s.nextTask)

	mux.HandleFunc("GET /api/agents/{id}/notifications", s.listNotifications)
	mux.HandleFunc("POST /api/agents/{id}/notifications/read-all", s.markAllRead)
	mux.HandleFunc("POST /api/agents/{id}/notifications/{nid}/read", s.markRead)

	mux.HandleFunc("GET /api/board", s.snapshot)
	mux.HandleFunc("GET /api/alerts", s.listAlerts)
	mux.HandleFunc("GET /api/metrics", s.boardMetrics)
	mux.HandleFunc("GET /healthz", s.health)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	return s.recoverer(s.logRequests(mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http bridge listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http bridge shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	body := map[string]any{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(results) > 0 {
		body["checks"] = results
	}
	writeJSON(w, status, body)
}
