package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RoomsActive is the number of rooms currently held by the registry
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms_active",
		Help: "Live class rooms held in memory.",
	})

	// ClientsConnected counts attached websocket connections, joined or not
	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_clients_connected",
		Help: "Websocket connections attached to the relay.",
	})

	EventsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_routed_total",
		Help: "Inbound events routed, by kind.",
	}, []string{"kind"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_dropped_total",
		Help: "Inbound events dropped, by reason.",
	}, []string{"reason"})

	RoomsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_rooms_removed_total",
		Help: "Rooms removed from the registry, by reason.",
	}, []string{"reason"})

	MetadataFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_class_metadata_fetches_total",
		Help: "Class metadata lookups against the classes API, by result.",
	}, []string{"result"})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
