package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	connections    prometheus.Gauge
	rooms          prometheus.Gauge
	requests       *prometheus.CounterVec
	rejectedWrites prometheus.Counter
	pushes         prometheus.Counter
	slowClosed     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "alias_relay_connections",
			Help: "Open websocket connections",
		}),
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "alias_relay_rooms",
			Help: "Rooms with at least one websocket subscriber",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alias_relay_requests_total",
			Help: "Room API requests by operation and status code",
		}, []string{"op", "status"}),
		rejectedWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "alias_relay_rejected_writes_total",
			Help: "Updates refused by the authority check",
		}),
		pushes: f.NewCounter(prometheus.CounterOpts{
			Name: "alias_relay_pushes_total",
			Help: "Room updates pushed to websocket subscribers",
		}),
		slowClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "alias_relay_slow_connections_closed_total",
			Help: "Connections closed because their send buffer was full",
		}),
	}
}
