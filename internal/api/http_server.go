package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"zapisnik/internal/config"
	"zapisnik/internal/domain"
	"zapisnik/internal/export"
	"zapisnik/internal/metrics"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking engine over a small JSON API.
type HTTPServer struct {
	cfg      *config.APIConfig
	engine   domain.BookingEngine
	state    domain.StateRepository
	exporter *export.Exporter
	loc      *time.Location
	logger   *zerolog.Logger
	server   *http.Server
	auth     *HTTPAuth
	limiter  *rateLimiter
}

func NewHTTPServer(cfg *config.APIConfig, engine domain.BookingEngine, state domain.StateRepository, exporter *export.Exporter, loc *time.Location, logger *zerolog.Logger) *HTTPServer {
	if loc == nil {
		loc = time.Local
	}
	srv := &HTTPServer{
		cfg:      cfg,
		engine:   engine,
		state:    state,
		exporter: exporter,
		loc:      loc,
		logger:   logger,
	}
	srv.auth = NewHTTPAuth(cfg)
	srv.limiter = newRateLimiter(cfg, state)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("PATCH /api/v1/bookings/{id}", srv.handleUpdateBooking)
	mux.HandleFunc("DELETE /api/v1/bookings/{id}", srv.handleCancelBooking)
	mux.HandleFunc("GET /api/v1/users/{id}/bookings", srv.handleUserBookings)
	mux.HandleFunc("DELETE /api/v1/users/{id}/bookings", srv.handleCancelAll)
	mux.HandleFunc("GET /api/v1/users/{id}/weekly-count", srv.handleWeeklyCount)
	mux.HandleFunc("GET /api/v1/reports/weekly", srv.handleWeeklyReport)
	mux.HandleFunc("POST /api/v1/admin/sweep", srv.handleSweep)
	mux.HandleFunc("GET /api/v1/admin/export", srv.handleExport)
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(srv.rateLimitMiddleware(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the configured handler chain for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		metrics.IncHTTP(endpointLabel(r.URL.Path))
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.Allow(r.Context(), clientNameFromContext(r.Context())) {
			writeError(w, http.StatusTooManyRequests, reasonRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// endpointLabel collapses IDs out of paths to keep metric cardinality low.
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if len(p) > 20 || (i > 0 && isNumeric(p)) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    reason,
			"message": message,
		},
	})
}
