package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	cached        prometheus.Gauge
	events        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	activations   *prometheus.CounterVec
}

// NewMetrics registers the synchronizer metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cached: f.NewGauge(prometheus.GaugeOpts{
			Name: "livequeue_cached_inquiries",
			Help: "The current number of inquiries in the local queue cache",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livequeue_events_total",
			Help: "Inquiry events handled, by event type and outcome",
		}, []string{"type", "outcome"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livequeue_notifications_total",
			Help: "New inquiry sound notifications, by result",
		}, []string{"result"}),
		activations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livequeue_activations_total",
			Help: "Synchronizer activations, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) setCached(n int) {
	if m == nil {
		return
	}
	m.cached.Set(float64(n))
}

func (m *Metrics) event(typ, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(typ, outcome).Inc()
}

func (m *Metrics) notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) activation(result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(result).Inc()
}
