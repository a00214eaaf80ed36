// Package api exposes the queue over HTTP. Routes are registered on a
// stdlib ServeMux with method patterns; request and response bodies are
// JSON. Domain errors map onto the HTTP taxonomy: validation failures
// are 400, holder conflicts 403, missing entities 404, duplicate
// submissions 409, shed load 429, and backend unavailability 503.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/gate"
	"github.com/xraph/warrant/queue"
)

// Server routes HTTP traffic to a queue.
type Server struct {
	queue  *queue.Queue
	gate   *gate.Gate
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGate applies admission control to the claim path.
func WithGate(g *gate.Gate) Option {
	return func(s *Server) { s.gate = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer builds a Server over q.
func NewServer(q *queue.Queue, opts ...Option) *Server {
	s := &Server{
		queue:  q,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/tasks", s.handleSubmit)
	mux.HandleFunc("GET /v1/tasks", s.handleList)
	mux.HandleFunc("GET /v1/tasks/stats", s.handleStats)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /v1/claims", s.handleClaim)
	mux.HandleFunc("POST /v1/tasks/{id}/renew", s.handleRenew)
	mux.HandleFunc("POST /v1/tasks/{id}/release", s.handleRelease)
	mux.HandleFunc("POST /v1/tasks/{id}/complete", s.handleComplete)
	mux.HandleFunc("GET /v1/tasks/{id}/result", s.handleGetResult)
	mux.HandleFunc("GET /v1/healthz", s.handleHealth)

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, warrant.ErrInvalidPriority),
		errors.Is(err, warrant.ErrEmptyWorkerID):
		status = http.StatusBadRequest
	case errors.Is(err, warrant.ErrNotLeaseHolder):
		status = http.StatusForbidden
	case errors.Is(err, warrant.ErrTaskNotFound),
		errors.Is(err, warrant.ErrLeaseNotFound),
		errors.Is(err, warrant.ErrResultNotFound):
		status = http.StatusNotFound
	case errors.Is(err, warrant.ErrTaskExists):
		status = http.StatusConflict
	case errors.Is(err, gate.ErrLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, warrant.ErrUnavailable),
		errors.Is(err, warrant.ErrNoBackend):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
