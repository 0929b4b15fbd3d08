package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type eventMetrics struct {
	eventsTotal    *prometheus.CounterVec
	deliveryErrors *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
}

func newEventMetrics(registry prometheus.Registerer) *eventMetrics {
	factory := promauto.With(registry)
	return &eventMetrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voting_event_bus_events_total",
			Help: "total events published, by type",
		}, []string{"type"}),
		deliveryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voting_event_bus_delivery_errors_total",
			Help: "events that could not be delivered, by type and reason",
		}, []string{"type", "reason"}),
		subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voting_event_bus_subscribers",
			Help: "current subscribers, by event type",
		}, []string{"type"}),
	}
}
