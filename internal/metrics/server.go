package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports component health; a non-nil error marks the service
// unhealthy.
type HealthFunc func(ctx context.Context) error

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int
	MetricsPath string
}

// Server serves health, metrics and debug endpoints.
type Server struct {
	cfg         ServerConfig
	gatherer    prometheus.Gatherer
	health      HealthFunc
	instruments func() []string
	logger      *slog.Logger

	srv *http.Server
}

// NewServer creates a Server. health and instruments may be nil.
func NewServer(cfg ServerConfig, gatherer prometheus.Gatherer, health HealthFunc, instruments func() []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{
		cfg:         cfg,
		gatherer:    gatherer,
		health:      health,
		instruments: instruments,
		logger:      logger.With("component", "http"),
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/debug/instruments", s.handleInstruments)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}

	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]string{"status": "unhealthy", "error": err.Error()}
		}
	}

	writeJSON(w, status, body)
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	active := []string{}
	if s.instruments != nil {
		active = s.instruments()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_instruments": active,
		"instrument_count":   len(active),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
