package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the propagation metrics shared by the services.
type Metrics struct {
	EpisodesDetected   prometheus.Counter
	CompositionFailed  prometheus.Counter
	DispatchCalls      *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	DispatchQueueDepth prometheus.Gauge
	UpsertsApplied     *prometheus.CounterVec
	FeedbackSent       *prometheus.CounterVec
	FeedbackReceived   *prometheus.CounterVec
}

// New creates and registers the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EpisodesDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "infosync_episodes_detected_total",
			Help: "Writes whose confirmation transition started a propagation episode",
		}),
		CompositionFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "infosync_composition_failed_total",
			Help: "Episodes whose notification could not be composed",
		}),
		DispatchCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infosync_dispatch_calls_total",
			Help: "Downstream calls by destination and final outcome",
		}, []string{"destination", "outcome"}),
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "infosync_dispatch_duration_seconds",
			Help:    "Time to resolve one destination, retries included",
			Buckets: prometheus.DefBuckets,
		}, []string{"destination"}),
		DispatchQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "infosync_dispatch_queue_depth",
			Help: "Episodes waiting in the in-process dispatch queue",
		}),
		UpsertsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infosync_upserts_total",
			Help: "Inbound upserts by result",
		}, []string{"result"}),
		FeedbackSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infosync_feedback_sent_total",
			Help: "Feedback calls to the origin by result",
		}, []string{"result"}),
		FeedbackReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infosync_feedback_received_total",
			Help: "Feedback received by the origin, by source",
		}, []string{"source"}),
	}
}

func (m *Metrics) IncEpisodesDetected() {
	m.EpisodesDetected.Inc()
}

func (m *Metrics) IncCompositionFailed() {
	m.CompositionFailed.Inc()
}

func (m *Metrics) ObserveDispatch(destination string, ok bool, d time.Duration) {
	outcome := "failed"
	if ok {
		outcome = "success"
	}
	m.DispatchCalls.WithLabelValues(destination, outcome).Inc()
	m.DispatchDuration.WithLabelValues(destination).Observe(d.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	m.DispatchQueueDepth.Set(float64(n))
}

func (m *Metrics) IncUpserts(ok bool) {
	m.UpsertsApplied.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) IncFeedbackSent(ok bool) {
	m.FeedbackSent.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) IncFeedbackReceived(source string) {
	m.FeedbackReceived.WithLabelValues(source).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
