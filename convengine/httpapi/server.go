// Package httpapi exposes the conversation engine over HTTP: a single
// turn endpoint plus health and metrics routes.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/bloomline-ai/promoflow/convengine/logging"
	"github.com/bloomline-ai/promoflow/convengine/observability"
	"github.com/bloomline-ai/promoflow/convengine/workflow"
)

// TurnProcessor is the slice of the engine the API needs.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req *workflow.TurnRequest) (*workflow.TurnResponse, error)
}

// Config holds the HTTP surface settings.
type Config struct {
	// AllowedOrigins feeds the CORS layer; empty disables CORS entirely.
	AllowedOrigins []string
	// MaxBodyBytes caps the turn request body. Zero means 64 KiB.
	MaxBodyBytes int64
}

// DefaultConfig returns settings suitable for local development.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   64 << 10,
	}
}

// Server serves the turn API.
type Server struct {
	proc TurnProcessor
	cfg  Config
	log  logging.Logger
}

func NewServer(proc TurnProcessor, cfg Config, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &Server{proc: proc, cfg: cfg, log: log}
}

// Handler builds the full route table wrapped in recovery, access
// logging, and optional CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/turns", s.instrument("/v1/turns", http.HandlerFunc(s.handleTurn)))
	mux.Handle("GET /healthz", s.instrument("/healthz", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	h = s.recovery(h)

	if len(s.cfg.AllowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
		})
		h = c.Handler(h)
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusRecorder captures the response code for access logs and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := int(time.Since(start).Milliseconds())
		observability.RecordHTTPRequest(route, strconv.Itoa(rec.status), elapsed)
		s.log.Info("http request",
			"route", route,
			"method", r.Method,
			"status", rec.status,
			"duration_ms", elapsed,
		)
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("panic recovered",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"stack", string(debug.Stack()),
				)
				respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
