// Package api exposes the HTTP interface for the pricing pipeline.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/popvault/pricewatch/internal/catalog"
	"github.com/popvault/pricewatch/internal/config"
	"github.com/popvault/pricewatch/internal/metrics"
	"github.com/popvault/pricewatch/internal/scheduler"
	"github.com/popvault/pricewatch/internal/trigger"
)

// SchedulerRunner executes one scheduler pass on demand.
type SchedulerRunner interface {
	Run(ctx context.Context) (scheduler.Summary, error)
}

// TriggerService is the manual rescrape surface.
type TriggerService interface {
	TriggerItem(ctx context.Context, itemID uuid.UUID, sources []catalog.SourceID) (trigger.ItemResult, error)
	TriggerAll(ctx context.Context) (trigger.BulkResult, error)
}

// ReadyCheck reports whether downstream dependencies are reachable.
type ReadyCheck func(ctx context.Context) error

// Server wires HTTP handlers to the scheduler and trigger service.
type Server struct {
	router    chi.Router
	scheduler SchedulerRunner
	trigger   TriggerService
	ready     ReadyCheck
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	cfg config.Config,
	sched SchedulerRunner,
	trig TriggerService,
	ready ReadyCheck,
	logger *zap.Logger,
) *Server {
	s := &Server{
		scheduler: sched,
		trigger:   trig,
		ready:     ready,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/scheduler/run", s.runScheduler)
		r.Post("/items/{item_id}/rescrape", s.rescrapeItem)
		r.Post("/rescrape-all", s.rescrapeAll)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "dependencies unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) runScheduler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.scheduler.Run(r.Context())
	if err != nil {
		s.logger.Error("scheduler run failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "scheduler run failed")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

type rescrapeItemRequest struct {
	Sources []string `json:"sources"`
}

func (s *Server) rescrapeItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "item_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req rescrapeItemRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	sources, err := s.resolveSources(req.Sources)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.trigger.TriggerItem(r.Context(), itemID, sources)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "item not found")
			return
		}
		s.logger.Error("item rescrape failed", zap.String("item_id", itemID.String()), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "rescrape failed")
		return
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) rescrapeAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.trigger.TriggerAll(r.Context())
	if err != nil {
		s.logger.Error("bulk rescrape failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "rescrape failed")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"items_affected": result.ItemsAffected,
		"summary":        result.Summary,
		"message":        fmt.Sprintf("%d items marked stale, scraping continues in the background", result.ItemsAffected),
	})
}

// resolveSources validates requested sources against the enabled set. An
// empty request means "all enabled sources".
func (s *Server) resolveSources(requested []string) ([]catalog.SourceID, error) {
	if len(requested) == 0 {
		return nil, nil
	}
	enabled := make(map[catalog.SourceID]bool)
	for _, id := range s.cfg.EnabledSources() {
		enabled[id] = true
	}
	out := make([]catalog.SourceID, 0, len(requested))
	for _, raw := range requested {
		id := catalog.SourceID(raw)
		if !enabled[id] {
			return nil, fmt.Errorf("unknown or disabled source %q", raw)
		}
		out = append(out, id)
	}
	return out, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.status), duration)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
