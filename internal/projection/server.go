package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ShayCichocki/nova/internal/agent"
	"github.com/ShayCichocki/nova/internal/logging"
	"github.com/ShayCichocki/nova/internal/tracker"
)

// NewRouter mounts the projection API:
//
//	GET /healthz
//	GET /api/status/{rootID}
//	GET /api/status/{rootID}/tasks/{taskID}
//	GET /api/tasks/{taskID}/logs?lines=N
func NewRouter(svc *Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	h := &handlers{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/status/{rootID}", h.getStatus)
		r.Get("/status/{rootID}/tasks/{taskID}", h.getTask)
		r.Get("/tasks/{taskID}/logs", h.getLogs)
	})
	return r
}

type handlers struct {
	svc    *Service
	logger *slog.Logger
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Status(r.Context(), chi.URLParam(r, "rootID"))
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Task(r.Context(), chi.URLParam(r, "rootID"), chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type logsResponse struct {
	TaskID string `json:"task_id"`
	Logs   string `json:"logs"`
}

// maxLogLines bounds the tail a single request may ask for.
const maxLogLines = 10000

func (h *handlers) getLogs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if h.svc.LogDir() == "" {
		writeError(w, http.StatusNotFound, "log capture is disabled")
		return
	}

	lines := 0
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxLogLines {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("lines must be an integer between 0 and %d", maxLogLines))
			return
		}
		lines = n
	}

	var content string
	if lines > 0 {
		tail, err := agent.LogTail(h.svc.LogDir(), taskID, lines)
		if err != nil {
			h.writeLogError(w, taskID, err)
			return
		}
		if len(tail) > 0 {
			content = strings.Join(tail, "\n") + "\n"
		}
	} else {
		data, err := os.ReadFile(agent.LogPath(h.svc.LogDir(), taskID))
		if err != nil {
			h.writeLogError(w, taskID, err)
			return
		}
		content = string(data)
	}
	writeJSON(w, http.StatusOK, logsResponse{TaskID: taskID, Logs: content})
}

func (h *handlers) writeLogError(w http.ResponseWriter, taskID string, err error) {
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "log file not found for task "+taskID)
		return
	}
	h.logger.Error("read task log", "task", taskID, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// writeTrackerError maps tracker failures to HTTP statuses.
func (h *handlers) writeTrackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tracker.ErrCyclicGraph), errors.Is(err, tracker.ErrInvalidGraph):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tracker.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "tracker unavailable")
	default:
		h.logger.Error("build projection", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}

// Server is the HTTP front of a Service.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, svc *Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(svc, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("projection server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("projection server stopped")
	return nil
}
