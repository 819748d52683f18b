package health

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"mintgate/pkg/testutil"
)

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestHandleStatus(t *testing.T) {
	t.Run("without a schedule", func(t *testing.T) {
		rr := testutil.DoRequest(router(New("sandbox")), testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[StatusResponse](t, rr)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "sandbox", resp.Environment)
		assert.Empty(t, resp.ActivePhase)
	})

	t.Run("reports the phase open at probe time", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		var asked time.Time
		h := New("production",
			WithClock(func() time.Time { return now }),
			WithActivePhase(func(at time.Time) string {
				asked = at
				return "Allowlist Sale"
			}),
		)

		rr := testutil.DoRequest(router(h), testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[StatusResponse](t, rr)
		assert.Equal(t, "Allowlist Sale", resp.ActivePhase)
		assert.Equal(t, "2026-03-01T12:00:00Z", resp.Timestamp)
		assert.True(t, asked.Equal(now))
	})
}

func TestHandleReadiness(t *testing.T) {
	t.Run("all checks up", func(t *testing.T) {
		h := New("sandbox")
		h.RegisterCheck("database", func(context.Context) error { return nil })

		rr := testutil.DoRequest(router(h), testutil.NewRequest(t, http.MethodGet, "/health/ready"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[ReadinessResponse](t, rr)
		assert.Equal(t, "up", resp.Checks["database"])
	})

	t.Run("one check down", func(t *testing.T) {
		h := New("sandbox")
		h.RegisterCheck("database", func(context.Context) error { return nil })
		h.RegisterCheck("redis", func(context.Context) error { return errors.New("connection refused") })

		rr := testutil.DoRequest(router(h), testutil.NewRequest(t, http.MethodGet, "/health/ready"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		resp := testutil.UnmarshalResponse[ReadinessResponse](t, rr)
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, "down: connection refused", resp.Checks["redis"])
	})

	t.Run("optional check down degrades", func(t *testing.T) {
		h := New("sandbox")
		h.RegisterCheck("database", func(context.Context) error { return nil })
		h.RegisterOptionalCheck("kafka", func(context.Context) error { return errors.New("no reachable broker") })

		rr := testutil.DoRequest(router(h), testutil.NewRequest(t, http.MethodGet, "/health/ready"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[ReadinessResponse](t, rr)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "up", resp.Checks["database"])
		assert.Equal(t, "down: no reachable broker", resp.Checks["kafka"])
	})

	t.Run("slow check is cut off by the probe timeout", func(t *testing.T) {
		h := New("sandbox", WithTimeout(20*time.Millisecond))
		h.RegisterCheck("database", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		rr := testutil.DoRequest(router(h), testutil.NewRequest(t, http.MethodGet, "/health/ready"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		resp := testutil.UnmarshalResponse[ReadinessResponse](t, rr)
		assert.Equal(t, "down: context deadline exceeded", resp.Checks["database"])
	})
}

func TestHandleLiveness(t *testing.T) {
	rr := testutil.DoRequest(router(New("sandbox")), testutil.NewRequest(t, http.MethodGet, "/health/live"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "alive")
}
