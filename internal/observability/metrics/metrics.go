package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the chat turn pipeline.
type ConversationMetrics struct {
	turnsTotal        *prometheus.CounterVec
	oracleAttempts    *prometheus.CounterVec
	oracleLatency     prometheus.Histogram
	scoreAdjustments  *prometheus.CounterVec
	reconcilerActions *prometheus.CounterVec
	leadAlerts        *prometheus.CounterVec
	backgroundTasks   *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "turns_total",
			Help:      "Total chat turns by outcome",
		}, []string{"outcome"}),
		oracleAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "oracle_attempts_total",
			Help:      "Completion oracle attempts by status",
		}, []string{"status"}),
		oracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "brain",
			Name:      "oracle_latency_seconds",
			Help:      "Latency of single completion oracle attempts",
			Buckets:   prometheus.DefBuckets,
		}),
		scoreAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "score_adjustments_total",
			Help:      "Intent scores overridden by the negativity detector, by signal strength",
		}, []string{"strength"}),
		reconcilerActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "reconciler_actions_total",
			Help:      "Reply edits and fact decisions taken by the reconciler",
		}, []string{"action"}),
		leadAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "lead_alerts_total",
			Help:      "High-intent lead alerts by status",
		}, []string{"status"}),
		backgroundTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "background_tasks_total",
			Help:      "Post-response tasks by task name and status",
		}, []string{"task", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.oracleAttempts, m.oracleLatency, m.scoreAdjustments,
		m.reconcilerActions, m.leadAlerts, m.backgroundTasks)
	return m
}

func (m *ConversationMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveOracleAttempt(status string, seconds float64) {
	if m == nil {
		return
	}
	m.oracleAttempts.WithLabelValues(status).Inc()
	m.oracleLatency.Observe(seconds)
}

func (m *ConversationMetrics) ObserveScoreAdjustment(strength string) {
	if m == nil {
		return
	}
	m.scoreAdjustments.WithLabelValues(strength).Inc()
}

func (m *ConversationMetrics) ObserveReconcilerAction(action string) {
	if m == nil {
		return
	}
	m.reconcilerActions.WithLabelValues(action).Inc()
}

func (m *ConversationMetrics) ObserveLeadAlert(status string) {
	if m == nil {
		return
	}
	m.leadAlerts.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveBackgroundTask(task, status string) {
	if m == nil {
		return
	}
	m.backgroundTasks.WithLabelValues(task, status).Inc()
}
