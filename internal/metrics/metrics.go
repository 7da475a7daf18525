// Package metrics holds the Prometheus instruments shared by the engine's
// services. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	warningsIssued      *prometheus.CounterVec
	bans                *prometheus.CounterVec
	unbans              prometheus.Counter
	pointsAwarded       prometheus.Counter
	pointsDeducted      prometheus.Counter
	achievementsEarned  *prometheus.CounterVec
	sideEffectFailures  *prometheus.CounterVec
	publishFailures     prometheus.Counter
	ledgerMismatches    prometheus.Counter
	messagesSent        *prometheus.CounterVec
	chatRejected        prometheus.Counter
	httpRequestDuration *prometheus.HistogramVec
	wsConnections       prometheus.Gauge
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		warningsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_moderation_warnings_issued_total",
			Help: "Warnings issued, by context type",
		}, []string{"context_type"}),
		bans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_moderation_bans_total",
			Help: "Automatic bans, by context type",
		}, []string{"context_type"}),
		unbans: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_moderation_unbans_total",
			Help: "Explicit unbans",
		}),
		pointsAwarded: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_points_awarded_total",
			Help: "Points credited to users",
		}),
		pointsDeducted: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_points_deducted_total",
			Help: "Points debited from users (before clamping)",
		}),
		achievementsEarned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_achievements_earned_total",
			Help: "Achievements unlocked, by title",
		}, []string{"title"}),
		sideEffectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_side_effect_failures_total",
			Help: "Best-effort side effects that failed, by name",
		}, []string{"name"}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_event_publish_failures_total",
			Help: "Realtime notifications that could not be published",
		}),
		ledgerMismatches: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_points_ledger_mismatches_total",
			Help: "Balances found out of step with the points ledger",
		}),
		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_chat_messages_total",
			Help: "Chat messages stored, by kind",
		}, []string{"kind"}),
		chatRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_chat_rejected_total",
			Help: "Chat messages refused by the chat gate",
		}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_websocket_connections",
			Help: "Open realtime connections",
		}),
	}
}

func (m *Metrics) WarningIssued(contextType string) {
	if m == nil {
		return
	}
	m.warningsIssued.WithLabelValues(contextType).Inc()
}

func (m *Metrics) Banned(contextType string) {
	if m == nil {
		return
	}
	m.bans.WithLabelValues(contextType).Inc()
}

func (m *Metrics) Unbanned() {
	if m == nil {
		return
	}
	m.unbans.Inc()
}

// PointsChanged records a ledger delta.
func (m *Metrics) PointsChanged(delta int64) {
	if m == nil {
		return
	}
	if delta >= 0 {
		m.pointsAwarded.Add(float64(delta))
	} else {
		m.pointsDeducted.Add(float64(-delta))
	}
}

func (m *Metrics) AchievementEarned(title string) {
	if m == nil {
		return
	}
	m.achievementsEarned.WithLabelValues(title).Inc()
}

func (m *Metrics) SideEffectFailed(name string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(name).Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) LedgerMismatch() {
	if m == nil {
		return
	}
	m.ledgerMismatches.Inc()
}

func (m *Metrics) MessageSent(kind string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) ChatRejected() {
	if m == nil {
		return
	}
	m.chatRejected.Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}
