package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zephyrite/zephyrite/internal/server/httpserver/handler"
	"github.com/zephyrite/zephyrite/internal/storage"
	"github.com/zephyrite/zephyrite/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Engine storage.Engine

	Logger *slog.Logger

	// Metrics records request metrics and, when MetricsEndpoint is set,
	// is served on /metrics. May be nil.
	Metrics         *metric.Registry
	MetricsEndpoint bool

	// Tracer enables per-request spans. May be nil.
	Tracer trace.Tracer

	// RateLimit is the sustained requests per second per client IP; zero
	// disables limiting.
	RateLimit float64
	RateBurst int

	// MaxBodyBytes caps request bodies; zero disables the cap.
	MaxBodyBytes int64

	Version string
	Backend string
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
//
// Middleware order, outermost first: Recover, RequestID, Tracing, Logging,
// RateLimit, MaxBody. /health and /metrics skip the rate limit.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(cfg.Engine, log,
		handler.WithVersion(cfg.Version),
		handler.WithBackend(cfg.Backend),
	)

	common := []Middleware{
		Recover(log),
		RequestID(),
		Tracing(cfg.Tracer),
		Logging(log, cfg.Metrics),
	}
	api := Chain(h, append(common,
		RateLimit(cfg.RateLimit, cfg.RateBurst, 3*time.Minute),
		MaxBody(cfg.MaxBodyBytes),
	)...)

	mux := http.NewServeMux()
	mux.Handle("GET /health", Chain(h, common...))
	if cfg.MetricsEndpoint && cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(), Recover(log), RequestID()))
	}
	mux.Handle("/keys", api)
	mux.Handle("/keys/", api)
	mux.Handle("/admin/", api)

	return mux
}
