package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's collectors. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Sockets   prometheus.Gauge
	Rooms     prometheus.Gauge
	EventsIn  *prometheus.CounterVec
	EventsOut *prometheus.CounterVec
	Requests  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Sockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clanchat",
			Name:      "sockets_connected",
			Help:      "Number of open push-channel connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clanchat",
			Name:      "rooms_active",
			Help:      "Number of room hubs currently running.",
		}),
		EventsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clanchat",
			Name:      "events_received_total",
			Help:      "Push-channel events received from clients.",
		}, []string{"event"}),
		EventsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clanchat",
			Name:      "events_sent_total",
			Help:      "Push-channel events queued to clients.",
		}, []string{"event"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clanchat",
			Name:      "http_requests_total",
			Help:      "REST requests by route and status code.",
		}, []string{"route", "status"}),
	}
	m.registry.MustRegister(m.Sockets, m.Rooms, m.EventsIn, m.EventsOut, m.Requests)
	m.registry.MustRegister(prometheus.NewGoCollector())
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, status int) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
