package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the mint module. A nil *Metrics is valid
// and records nothing, so services and tests can run without a registry.
type Metrics struct {
	AdmissionsTotal      *prometheus.CounterVec
	AdmissionDuration    prometheus.Histogram
	ReconciliationsTotal *prometheus.CounterVec
	ProviderCallsTotal   *prometheus.CounterVec
	ProviderCircuitOpen  prometheus.Gauge
	MintsByStatus        *prometheus.GaugeVec
	WebhooksTotal        *prometheus.CounterVec
}

// New registers the mint metrics on the default registry. Call once per process.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the mint metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AdmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mintgate_admissions_total",
			Help: "Mint admission attempts by outcome (admitted or the denial code)",
		}, []string{"outcome"}),
		AdmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mintgate_admission_duration_seconds",
			Help:    "Duration of the admission transaction and provider submission",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ReconciliationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mintgate_reconciliations_total",
			Help: "Ledger reconciliations by trigger source and resulting status",
		}, []string{"source", "status"}),
		ProviderCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mintgate_provider_calls_total",
			Help: "Minting provider calls by operation and result",
		}, []string{"operation", "result"}),
		ProviderCircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mintgate_provider_circuit_open",
			Help: "1 when the minting provider circuit breaker is open",
		}),
		MintsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mintgate_mints",
			Help: "Ledger rows by status, refreshed by the reconciliation worker",
		}, []string{"status"}),
		WebhooksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mintgate_webhooks_total",
			Help: "Inbound provider webhooks by message type and result",
		}, []string{"type", "result"}),
	}
}

// ObserveAdmission records one admission attempt and its duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAdmission(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.AdmissionsTotal.WithLabelValues(outcome).Inc()
	m.AdmissionDuration.Observe(time.Since(start).Seconds())
}

// IncReconciliation records a ledger transition (or no-op) from source.
func (m *Metrics) IncReconciliation(source, status string) {
	if m == nil {
		return
	}
	m.ReconciliationsTotal.WithLabelValues(source, status).Inc()
}

// IncProviderCall records a provider call result.
func (m *Metrics) IncProviderCall(operation, result string) {
	if m == nil {
		return
	}
	m.ProviderCallsTotal.WithLabelValues(operation, result).Inc()
}

// SetCircuitOpen mirrors the provider breaker state.
func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.ProviderCircuitOpen.Set(1)
		return
	}
	m.ProviderCircuitOpen.Set(0)
}

// SetMintsByStatus publishes ledger row counts.
func (m *Metrics) SetMintsByStatus(counts map[string]int64) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.MintsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// IncWebhook records an inbound webhook.
func (m *Metrics) IncWebhook(messageType, result string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(messageType, result).Inc()
}
