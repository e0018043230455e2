// Package server exposes a change log over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/fakeyudi/snaptrace/internal/logview"
	"github.com/fakeyudi/snaptrace/tracer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Log is the store the API serves: a sink that can also be cleared.
type Log interface {
	tracer.Sink
	Clear() error
}

// Server serves the change log API.
type Server struct {
	log    Log
	logger *slog.Logger
	router *chi.Mux
}

// New builds the router for log.
func New(log Log, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{log: log, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/logs", s.handleListLogs)
		r.Delete("/logs", s.handleClearLogs)
		r.Get("/timeline", s.handleTimeline)
		r.Get("/state/{index}", s.handleState)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func (s *Server) events() (*logview.Log, error) {
	lines, err := s.log.Lines()
	if err != nil {
		return nil, err
	}
	parsed := logview.ParseLines(lines)
	for _, lerr := range parsed.Errors {
		s.logger.Warn("skipping malformed log line", "line", lerr.Line, "error", lerr.Err)
	}
	return parsed, nil
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	parsed, err := s.events()
	if err != nil {
		s.fail(w, r, "Failed to read log file", err)
		return
	}
	entries := parsed.Events
	if entries == nil {
		entries = []tracer.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.log.Clear(); err != nil {
		s.fail(w, r, "Failed to clear log file", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	parsed, err := s.events()
	if err != nil {
		s.fail(w, r, "Failed to read log file", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": logview.BuildTimeline(parsed.Events)})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "index must be an integer"})
		return
	}
	parsed, err := s.events()
	if err != nil {
		s.fail(w, r, "Failed to read log file", err)
		return
	}
	timeline := logview.BuildTimeline(parsed.Events)
	writeJSON(w, http.StatusOK, map[string]any{
		"index":   index,
		"state":   logview.StateAt(timeline, index),
		"changes": logview.ChangesAt(timeline, index),
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, "error", err, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestLogger logs one line per request through logger.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
