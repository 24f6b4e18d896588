// Package api implements the Falconeri coordination core's REST facade
// (spec.md §4.7): job submission, job/datum lookup, and the worker-facing
// reservation and output-protocol RPCs.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/falconeri/falconeri/internal/admission"
	"github.com/falconeri/falconeri/internal/api/middleware"
	"github.com/falconeri/falconeri/internal/store"
)

// Server is the coordination core's HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	config     *ServerConfig
	startTime  time.Time
	store      *store.Store
	admitter   *admission.Admitter
	version    string
	limiter    *middleware.RateLimiter
}

// NewServer builds a Server with its middleware chain and routes wired.
// Dependencies (store, admitter) are injected explicitly rather than
// constructed here, following the teacher's dependency-injection
// convention — cfg carries only what (ports, timeouts), never how.
func NewServer(cfg *ServerConfig, s *store.Store, admitter *admission.Admitter, version string) (*Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if s == nil || admitter == nil {
		panic("falconeri: store and admitter are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	mux := http.NewServeMux()

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		GlobalRPS:    cfg.GlobalRPS,
		PerClientRPS: cfg.PerClientRPS,
	})

	server := &Server{
		logger:   logger,
		config:   cfg,
		store:    s,
		admitter: admitter,
		version:  version,
		limiter:  limiter,
	}

	server.setupRoutes(mux)

	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(limiter, logger),
		middleware.WithBasicAuth(BasicAuthUser, passwordHash, logger),
		middleware.WithRequestLogger(logger),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// Start runs the HTTP server and blocks until a shutdown signal arrives
// or the server fails.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting falconeri api server",
			slog.String("address", s.config.Address()),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.limiter.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server shutdown completed")

	return nil
}
