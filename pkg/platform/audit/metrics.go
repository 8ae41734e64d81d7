package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit trail.
type Metrics struct {
	Appended       *prometheus.CounterVec
	AppendFailures *prometheus.CounterVec
	OutboxRelayed  prometheus.Counter
	OutboxFailures prometheus.Counter
	BreakerState   prometheus.Gauge
}

// NewMetrics registers audit metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Appended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infosync_audit_appended_total",
			Help: "Audit entries persisted, by action category",
		}, []string{"category"}),
		AppendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infosync_audit_append_failures_total",
			Help: "Audit entries that could not be persisted, by action category",
		}, []string{"category"}),
		OutboxRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "infosync_audit_outbox_relayed_total",
			Help: "Outbox rows published to the audit topic",
		}),
		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "infosync_audit_outbox_failures_total",
			Help: "Outbox publish attempts that failed",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "infosync_audit_outbox_breaker_open",
			Help: "Outbox relay circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) IncAppended(kind ActionKind) {
	m.Appended.WithLabelValues(string(kind.Category())).Inc()
}

func (m *Metrics) IncAppendFailures(kind ActionKind) {
	m.AppendFailures.WithLabelValues(string(kind.Category())).Inc()
}

func (m *Metrics) AddOutboxRelayed(n int) {
	m.OutboxRelayed.Add(float64(n))
}

func (m *Metrics) IncOutboxFailures() {
	m.OutboxFailures.Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}
