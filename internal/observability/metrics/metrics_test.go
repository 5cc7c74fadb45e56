package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveTurn("ok")
	m.ObserveTurn("ok")
	m.ObserveTurn("oracle_error")
	m.ObserveOracleAttempt("error", 0.2)
	m.ObserveOracleAttempt("ok", 0.4)
	m.ObserveScoreAdjustment("2")
	m.ObserveReconcilerAction("append_confirmation")
	m.ObserveLeadAlert("sent")
	m.ObserveBackgroundTask("persist_turn", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("oracle_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leadAlerts.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backgroundTasks.WithLabelValues("persist_turn", "ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var latency *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "brain_oracle_latency_seconds" {
			latency = mf
		}
	}
	require.NotNil(t, latency)
	assert.Equal(t, uint64(2), latency.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestConversationMetricsNilSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveTurn("ok")
	m.ObserveOracleAttempt("ok", 0.1)
	m.ObserveScoreAdjustment("3")
	m.ObserveReconcilerAction("strip_extra_contact_request")
	m.ObserveLeadAlert("failed")
	m.ObserveBackgroundTask("task", "error")
}
