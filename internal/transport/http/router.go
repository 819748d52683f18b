package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mintgate/pkg/platform/middleware/request"
	pkgstrings "mintgate/pkg/platform/strings"
	"mintgate/pkg/requestcontext"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries the cross-cutting settings for the public router.
type RouterConfig struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Gatherer backs GET /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter wires middleware shared by every endpoint, then lets each
// registrar mount its own routes. Handlers stay free of transport plumbing.
func NewRouter(cfg RouterConfig, registrars ...Registrar) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	origins := pkgstrings.Clean(cfg.AllowedOrigins)
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.ClientIP)
	r.Use(request.RequestTime)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", request.HeaderRequestID},
		ExposedHeaders:   []string{request.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	r.Use(func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, `{"error":"timeout"}`)
	})

	for _, reg := range registrars {
		if reg != nil {
			reg.Register(r)
		}
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.DebugContext(r.Context(), "route not found",
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found"}`))
	})
	return r
}
