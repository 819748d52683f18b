// Package middleware throttles callers per client IP and endpoint class.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mintgate/internal/ratelimit/metrics"
	"mintgate/internal/ratelimit/models"
	"mintgate/pkg/platform/httputil"
	"mintgate/pkg/requestcontext"
)

// Store is a sliding-window counter keyed by caller.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type Middleware struct {
	store    Store
	limits   map[models.EndpointClass]models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns every limit into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithLimit sets the budget of one endpoint class. Classes without a limit are not throttled.
func WithLimit(class models.EndpointClass, requests int, window time.Duration) Option {
	return func(m *Middleware) {
		if requests > 0 && window > 0 {
			m.limits[class] = models.Limit{Requests: requests, Window: window}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(store Store, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limits: make(map[models.EndpointClass]models.Limit),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		m.logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit throttles by client IP. A store failure lets the request through;
// the admission engine, not the limiter, protects the ledger.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limit, ok := m.limits[class]
		if m.disabled || !ok || m.store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := m.store.Allow(ctx, string(class)+":"+ip, limit.Requests, limit.Window)
			if err != nil {
				m.metrics.IncStoreError()
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				m.metrics.IncLimited(string(class))
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class,
					"client_ip", ip,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeRateLimitExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests from this IP address. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
