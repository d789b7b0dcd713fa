// Package metrics holds the prometheus collectors for the settlement
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "craftchain"

type Metrics struct {
	ordersCreated        prometheus.Counter
	settlements          *prometheus.CounterVec
	signatureFailures    *prometheus.CounterVec
	certificateMints     *prometheus.CounterVec
	duplicateSettlements prometheus.Counter
	gatewayLatency       *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Gateway orders created.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlement attempts by outcome.",
		}, []string{"outcome"}),
		signatureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_failures_total",
			Help:      "Rejected gateway signatures by source.",
		}, []string{"source"}),
		certificateMints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificate_mints_total",
			Help:      "Certificate mint attempts by result.",
		}, []string{"result"}),
		duplicateSettlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_settlements_total",
			Help:      "Settlement calls answered from the stored result.",
		}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of outbound gateway and ledger calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream", "operation"}),
	}

	reg.MustRegister(
		m.ordersCreated,
		m.settlements,
		m.signatureFailures,
		m.certificateMints,
		m.duplicateSettlements,
		m.gatewayLatency,
	)
	return m
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) Settlement(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SignatureFailure(source string) {
	if m == nil {
		return
	}
	m.signatureFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) CertificateMint(result string) {
	if m == nil {
		return
	}
	m.certificateMints.WithLabelValues(result).Inc()
}

func (m *Metrics) DuplicateSettlement() {
	if m == nil {
		return
	}
	m.duplicateSettlements.Inc()
}

func (m *Metrics) ObserveUpstream(upstream, operation string, started time.Time) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(upstream, operation).Observe(time.Since(started).Seconds())
}
