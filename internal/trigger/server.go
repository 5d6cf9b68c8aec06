// Package trigger receives task webhooks and feeds them to the dispatcher.
package trigger

import (
	"context"
	"errors"
	"io"
	"net/http"
	"runtime"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/dispatch"
	"github.com/sawpanic/noticerun/internal/net/ratelimit"
)

const maxBodyBytes = 1 << 20

// Config holds server configuration
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Version      string
	// Limits, when set, reports the upstream limiter of each open account.
	Limits func() map[int64]ratelimit.LimiterStats
}

// Server is the webhook endpoint.
type Server struct {
	router   *mux.Router
	server   *http.Server
	verifier Verifier
	queue    *Queue
	metrics  http.Handler
	config   Config
	started  time.Time
}

// NewServer wires the routes. A nil metrics handler disables /metrics.
func NewServer(cfg Config, verifier Verifier, queue *Queue, metrics http.Handler) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	s := &Server{
		router:   mux.NewRouter(),
		verifier: verifier,
		queue:    queue,
		metrics:  metrics,
		config:   cfg,
		started:  time.Now(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

type ctxKey struct{}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), ctxKey{}, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs all requests with structured format
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(ctxKey{}).(string)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("Request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unreadable body"})
		return
	}
	signature := r.Header.Get(HeaderSignature)
	timestamp := r.Header.Get(HeaderTimestamp)
	if signature == "" || timestamp == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing signature or timestamp"})
		return
	}

	var ev dispatch.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Malformed payload"})
		return
	}
	if err := ev.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Incomplete payload"})
		return
	}

	if err := s.verifier.Verify(r.Context(), ev.AccountID, timestamp, signature, body); err != nil {
		log.Warn().Err(err).Int64("account_id", ev.AccountID).Msg("Webhook rejected")
		if errors.Is(err, ErrBadSignature) || errors.Is(err, ErrStaleTimestamp) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Account lookup failed"})
		return
	}

	if err := s.queue.Enqueue(ev); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	log.Info().
		Int64("account_id", ev.AccountID).
		Int64("task_id", ev.TaskID).
		Str("event", ev.EventName).
		Msg("Webhook accepted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Uptime     string    `json:"uptime"`
	Version    string    `json:"version"`
	QueueDepth int       `json:"queue_depth"`
	Goroutines int       `json:"num_goroutines"`

	Limits    map[int64]ratelimit.LimiterStats `json:"limits,omitempty"`
	Throttled []int64                          `json:"throttled_accounts,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(s.started).Truncate(time.Second).String(),
		Version:    s.config.Version,
		QueueDepth: s.queue.Len(),
		Goroutines: runtime.NumGoroutine(),
	}
	if s.config.Limits != nil {
		resp.Limits = s.config.Limits()
		for id, st := range resp.Limits {
			if st.IsThrottled() {
				resp.Throttled = append(resp.Throttled, id)
			}
		}
		sort.Slice(resp.Throttled, func(i, j int) bool { return resp.Throttled[i] < resp.Throttled[j] })
	}
	writeJSON(w, http.StatusOK, resp)
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("Starting trigger server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down trigger server")
	return s.server.Shutdown(ctx)
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
