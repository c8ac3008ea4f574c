package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for catalog, media and push activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	catalogMutations *prometheus.CounterVec
	mediaCleanup     *prometheus.CounterVec
	pushDeliveries   *prometheus.CounterVec
	pushSends        prometheus.Counter
}

// MustNew registers the collectors on reg. Registration errors panic, which
// surfaces duplicate wiring at startup.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		catalogMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lookbook",
				Subsystem: "catalog",
				Name:      "mutations_total",
				Help:      "Committed product mutations by operation.",
			},
			[]string{"op"},
		),
		mediaCleanup: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lookbook",
				Subsystem: "media",
				Name:      "cleanup_total",
				Help:      "Object store cleanup outcomes by kind and result.",
			},
			[]string{"kind", "result"},
		),
		pushDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lookbook",
				Subsystem: "push",
				Name:      "deliveries_total",
				Help:      "Push deliveries by outcome.",
			},
			[]string{"outcome"},
		),
		pushSends: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lookbook",
				Subsystem: "push",
				Name:      "sends_total",
				Help:      "Notification broadcasts that reached at least one subscription.",
			},
		),
	}
	reg.MustRegister(m.catalogMutations, m.mediaCleanup, m.pushDeliveries, m.pushSends)
	return m
}

func (m *Metrics) CatalogMutation(op string) {
	if m == nil {
		return
	}
	m.catalogMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) MediaCleanup(kind, result string) {
	if m == nil {
		return
	}
	m.mediaCleanup.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) PushDelivery(outcome string) {
	if m == nil {
		return
	}
	m.pushDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PushSend() {
	if m == nil {
		return
	}
	m.pushSends.Inc()
}
