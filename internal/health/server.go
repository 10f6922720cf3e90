// Package health exposes a lightweight HTTP health endpoint for container probes.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/logging"
)

const (
	pingTimeout        = 2 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"

	statusOK       = "ok"
	statusError    = "error"
	statusDegraded = "degraded"
)

// Checker is a dependency that can be pinged.
type Checker interface {
	Ping(ctx context.Context) error
}

// Server hosts the health endpoint and owns the underlying HTTP server.
type Server struct {
	server   *http.Server
	logger   *logrus.Entry
	mongo    Checker
	postgres Checker
}

type response struct {
	Status   string `json:"status"`
	Mongo    string `json:"mongo"`
	Postgres string `json:"postgres"`
}

// NewServer constructs a health server that exposes GET /healthz on the
// provided port and reports on the document store and the seat ledger.
func NewServer(port int, mongo, postgres Checker, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:   logger,
		mongo:    mongo,
		postgres: postgres,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("health server stopped")
			return nil
		}

		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resp := response{
		Status:   statusOK,
		Mongo:    s.check(ctx, "mongo", s.mongo),
		Postgres: s.check(ctx, "postgres", s.postgres),
	}
	if resp.Mongo != statusOK || resp.Postgres != statusOK {
		resp.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}

func (s *Server) check(ctx context.Context, name string, checker Checker) string {
	if checker == nil {
		s.logger.WithFields(logging.Fields{
			"event":      "health_checker_missing",
			"dependency": name,
		}).Warn("dependency checker is not configured for health endpoint")
		return statusError
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := checker.Ping(pingCtx); err != nil {
		s.logger.WithFields(logging.Fields{
			"event":      "health_dependency_error",
			"dependency": name,
		}).WithError(err).Warn("dependency ping failed during health check")
		return statusError
	}
	return statusOK
}
