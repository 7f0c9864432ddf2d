package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/storage"
	"github.com/zephyrite/zephyrite/internal/telemetry/logger"
)

// Handler serves the key-value API.
type Handler struct {
	engine  storage.Engine
	logger  *slog.Logger
	mux     *http.ServeMux
	version string
	backend string
	started time.Time
	now     func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(h *Handler) {
		h.version = v
	}
}

// WithBackend sets the backend name reported by /health.
func WithBackend(name string) Option {
	return func(h *Handler) {
		h.backend = name
	}
}

// WithClock overrides time.Now for uptime reporting.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// New creates a Handler serving engine.
func New(engine storage.Engine, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		engine:  engine,
		logger:  logger,
		mux:     http.NewServeMux(),
		version: "dev",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.backend == "" {
		if b, ok := engine.(interface{ Backend() string }); ok {
			h.backend = b.Backend()
		}
	}
	h.started = h.now()

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)

	h.mux.HandleFunc("GET /keys", h.handleListKeys)
	h.mux.HandleFunc("DELETE /keys", h.handleClear)
	h.mux.HandleFunc("GET /keys/{key...}", h.handleGetKey)
	h.mux.HandleFunc("PUT /keys/{key...}", h.handlePutKey)
	h.mux.HandleFunc("DELETE /keys/{key...}", h.handleDeleteKey)

	h.mux.HandleFunc("GET /admin/stats", h.handleStats)
	h.mux.HandleFunc("POST /admin/compact", h.handleCompact)
	h.mux.HandleFunc("GET /admin/backup", h.handleBackup)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// getRequestID returns the ID assigned by the RequestID middleware, falling
// back to the client's header.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// handleStorageError converts engine errors to HTTP responses.
func (h *Handler) handleStorageError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := StatusForCode(de.Code)
		if status >= http.StatusInternalServerError {
			h.logger.Error("storage error",
				"request_id", getRequestID(r),
				"path", r.URL.Path,
				"error", err,
			)
		}
		var details any
		if de.Details != "" {
			details = map[string]string{"reason": de.Details}
		}
		h.writeError(w, r, status, de.Code, de.Message, details)
		return
	}

	h.logger.Error("internal error", "request_id", getRequestID(r), "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternal.Code, domain.ErrInternal.Message, nil)
}

// StatusForCode maps a domain error code to an HTTP status. The last four
// digits of the code carry the status followed by a discriminator digit.
func StatusForCode(code string) int {
	if len(code) < 4 {
		return http.StatusInternalServerError
	}
	n, err := strconv.Atoi(code[len(code)-4:])
	if err != nil {
		return http.StatusInternalServerError
	}
	status := n / 10
	if status < 400 || status > 599 || http.StatusText(status) == "" {
		return http.StatusInternalServerError
	}
	return status
}
