// Package api exposes the status HTTP interface: health, capability
// report, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gravyjobs/gravyjobs/internal/license"
)

// Server serves the status endpoints while a scrape run is in flight.
type Server struct {
	router  chi.Router
	license license.State
	logger  *zap.Logger
	port    int
}

// NewServer constructs a Server with routes registered.
func NewServer(state license.State, port int, logger *zap.Logger) *Server {
	s := &Server{
		license: state,
		logger:  logger,
		port:    port,
	}
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/license", s.licenseReport)
	r.Handle("/metrics", promhttp.Handler())
	s.router = r
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("status server listening", zap.Int("port", s.port))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) licenseReport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.license.Report()); err != nil {
		s.logger.Warn("encode license report", zap.Error(err))
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
