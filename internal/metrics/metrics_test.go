package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OrderCreated()
	m.Settlement("completed")
	m.Settlement("completed")
	m.SignatureFailure("callback")
	m.CertificateMint("minted")
	m.DuplicateSettlement()
	m.ObserveUpstream("razorpay", "create_order", time.Now())

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				got[f.GetName()] += c.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				got[f.GetName()] += float64(h.GetSampleCount())
			}
		}
	}

	assert.Equal(t, 1.0, got["craftchain_orders_created_total"])
	assert.Equal(t, 2.0, got["craftchain_settlements_total"])
	assert.Equal(t, 1.0, got["craftchain_signature_failures_total"])
	assert.Equal(t, 1.0, got["craftchain_certificate_mints_total"])
	assert.Equal(t, 1.0, got["craftchain_duplicate_settlements_total"])
	assert.Equal(t, 1.0, got["craftchain_gateway_request_duration_seconds"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderCreated()
		m.Settlement("completed")
		m.SignatureFailure("webhook")
		m.CertificateMint("failed")
		m.DuplicateSettlement()
		m.ObserveUpstream("ledger", "submit", time.Now())
	})
}
