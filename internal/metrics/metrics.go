package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_active_connections",
		Help: "Active websocket connections",
	})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_published_total",
		Help: "Realtime events published, by channel family and event name",
	}, []string{"family", "event"})

	EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_dropped_total",
		Help: "Incoming events dropped at subscribers, by reason",
	}, []string{"reason"})
)

func Init() {
	prometheus.MustRegister(WSConnections, EventsPublished, EventsDropped)
}

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
