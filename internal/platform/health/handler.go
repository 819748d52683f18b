// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"mintgate/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

type check struct {
	fn       CheckFunc
	required bool
}

// Handler provides health check endpoints.
//
// Required checks guard admission: if one fails the instance is not ready.
// Optional checks cover dependencies the gate can run without (the event
// stream, the rate-limit store, the provider while its circuit is open); a
// failure there reports "degraded" but keeps the instance in rotation.
type Handler struct {
	startTime   time.Time
	environment string
	timeout     time.Duration
	activePhase func(time.Time) string
	clock       func() time.Time

	mu     sync.RWMutex
	checks map[string]check
}

type Option func(*Handler)

// WithActivePhase reports the phase open at the probe time on /health.
func WithActivePhase(fn func(time.Time) string) Option {
	return func(h *Handler) {
		h.activePhase = fn
	}
}

// WithTimeout bounds a readiness probe. Default 2s.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func New(environment string, opts ...Option) *Handler {
	h := &Handler{
		environment: environment,
		timeout:     2 * time.Second,
		clock:       time.Now,
		checks:      make(map[string]check),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.clock()
	return h
}

// RegisterCheck adds a required check to the readiness probe.
func (h *Handler) RegisterCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn, required: true})
}

// RegisterOptionalCheck adds a check whose failure only degrades readiness.
func (h *Handler) RegisterOptionalCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn})
}

func (h *Handler) register(name string, c check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

// Register mounts health check routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs the registered checks concurrently. A failed required
// check answers 503; a failed optional one answers 200 with status "degraded".
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make(map[string]check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		results  = make(map[string]string, len(checks))
		notReady bool
		degraded bool
	)
	for name, c := range checks {
		wg.Go(func() {
			err := c.fn(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				results[name] = "up"
				return
			}
			results[name] = "down: " + err.Error()
			if c.required {
				notReady = true
			} else {
				degraded = true
			}
		})
	}
	wg.Wait()

	response := ReadinessResponse{Status: "ready", Checks: results}
	switch {
	case notReady:
		response.Status = "not_ready"
		httputil.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	case degraded:
		response.Status = "degraded"
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	ActivePhase   string `json:"active_phase,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HandleStatus answers the plain /health probe used by load balancers.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	now := h.clock()
	resp := StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
	if h.activePhase != nil {
		resp.ActivePhase = h.activePhase(now)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
