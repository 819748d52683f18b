package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts rate limit decisions. A nil *Metrics records nothing.
type Metrics struct {
	RequestsLimited *prometheus.CounterVec
	StoreErrors     prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mintgate_ratelimit_rejections_total",
			Help: "Requests rejected with 429 by endpoint class",
		}, []string{"class"}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "mintgate_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the store errored",
		}),
	}
}

func (m *Metrics) IncLimited(class string) {
	if m == nil {
		return
	}
	m.RequestsLimited.WithLabelValues(class).Inc()
}

func (m *Metrics) IncStoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
