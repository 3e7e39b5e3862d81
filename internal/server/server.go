// Package server exposes the orchestrator over HTTP. One endpoint accepts
// inbound channel messages; everything else is operational plumbing.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	errx "github.com/nextmove-ai/convocore/internal/core/error"
	"github.com/nextmove-ai/convocore/internal/engine"
	"github.com/nextmove-ai/convocore/internal/engine/model"
	logx "github.com/nextmove-ai/convocore/pkg/logger"
)

// Server routes HTTP traffic to the conversation engine.
type Server struct {
	orch   *engine.Orchestrator
	router chi.Router
}

// New builds the router with its middleware stack and routes.
func New(orch *engine.Orchestrator) *Server {
	s := &Server{orch: orch}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/messages", s.handleMessage)

	s.router = r
	return s
}

// Handler returns the fully configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg model.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, errx.InvalidInput("request body is not valid JSON"))
		return
	}

	resp, err := s.orch.HandleMessage(r.Context(), msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps engine errors onto HTTP responses. Only the safe message
// crosses the boundary; the wrapped cause stays in the logs.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := errx.SystemErrorMessage
	kind := errx.Kind("")

	var e *errx.Error
	if errors.As(err, &e) {
		if e.Status != 0 {
			status = e.Status
		}
		if e.Message != "" {
			message = e.Message
		}
		kind = e.Kind
	}
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Int("status", status).Msg("request failed")
	}

	writeJSON(w, status, map[string]any{
		"error": message,
		"kind":  kind,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("response encoding failed")
	}
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logx.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
