package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/af-corp/dentassist/internal/auth"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Keys auth.KeyStore
	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// RequestTimeout bounds one request, upstream retries included. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter mounts the handlers:
//
//	POST   /ask, /ask-with-file      bearer token when one is configured
//	GET    /actions, /actions/categories, /supported-files, /health, /cache/stats, /metrics
//	DELETE /cache/clear              admin token required
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)

	r.Get("/health", h.Health)
	r.Get("/actions", h.ListActions)
	r.Get("/actions/categories", h.ListCategories)
	r.Get("/supported-files", h.SupportedFiles)
	r.Get("/cache/stats", h.CacheStats)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(opts.Keys, true))
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		r.Post("/ask", h.Ask)
		r.Post("/ask-with-file", h.AskWithFile)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(opts.Keys, false))
		r.Use(auth.RequireAdmin)
		r.Delete("/cache/clear", h.ClearCache)
	})

	return r
}

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID propagates the caller's X-Request-ID or assigns a new one, and echoes it in the
// response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
