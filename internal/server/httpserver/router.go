package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Metrics serves /metrics. Nil disables the endpoint.
	Metrics http.Handler

	// Status returns the body of /status. Nil disables the endpoint.
	Status func() any

	// Logger for request logging.
	Logger *slog.Logger
}

// NewRouter creates the telemetry router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	if cfg.Status != nil {
		mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, cfg.Status())
		})
	}

	// Order: Recover -> RequestID -> AccessLog -> mux
	return Chain(mux, Recover(logger), RequestID(), AccessLog(logger))
}
