// Package server is the web shell: it wires a script path field, a run
// action and a continuously refreshed log pane to the runner and viewer.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/model"
	"github.com/t77yq/script-supervisor/internal/storage"
)

// ScriptRunner executes scripts and lists past runs
type ScriptRunner interface {
	Execute(ctx context.Context, scriptPath string) (*model.ExecutionResult, error)
	History(ctx context.Context, offset, limit int) ([]*storage.RunHistory, error)
}

// LogSource returns a snapshot of the log file
type LogSource interface {
	Refresh() (string, error)
}

// HostMonitor reports host utilisation
type HostMonitor interface {
	Snapshot(ctx context.Context) (*model.HostStats, error)
}

// Config holds server configuration
type Config struct {
	Addr            string
	RefreshInterval time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the web shell
type Server struct {
	logger *zap.Logger
	config Config
	router *chi.Mux
	runner ScriptRunner
	logs   LogSource
	host   HostMonitor
}

// New creates a server and its routes
func New(config Config, runner ScriptRunner, logs LogSource, host HostMonitor, logger *zap.Logger) *Server {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		logger: logger.Named("server"),
		config: config,
		router: chi.NewRouter(),
		runner: runner,
		logs:   logs,
		host:   host,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(requestLogger(s.logger))

	s.router.Get("/", s.handleIndex)
	s.router.With(sameOrigin(s.logger)).Post("/run", s.handleRun)
	s.router.Get("/log", s.handleLog)
	s.router.Get("/runs", s.handleRuns)
	s.router.Get("/status", s.handleStatus)
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Web shell listening", zap.String("addr", s.config.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down web shell")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
