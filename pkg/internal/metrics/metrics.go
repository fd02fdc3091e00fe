package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Packet directions
const (
	DirectionTx = "tx"
	DirectionRx = "rx"
)

// Session roles
const (
	RoleClient = "client"
	RoleServer = "server"
)

var (
	registerOnce sync.Once

	packets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "obex",
			Subsystem: "session",
			Name:      "packets_total",
			Help:      "OBEX packets written and read.",
		},
		[]string{"role", "direction", "code"},
	)
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "obex",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Completed OBEX operations by kind and final response.",
		},
		[]string{"role", "kind", "response"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "obex",
			Subsystem: "session",
			Name:      "operation_duration_seconds",
			Help:      "OBEX operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role", "kind"},
	)
	aborts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "obex",
			Subsystem: "session",
			Name:      "aborts_total",
			Help:      "OBEX operations aborted.",
		},
		[]string{"role"},
	)
	sessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "obex",
			Subsystem: "session",
			Name:      "active",
			Help:      "Open OBEX sessions.",
		},
		[]string{"role"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(packets, operations, operationDuration, aborts, sessions)
	})
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordPacket(role, direction, code string) {
	RegisterMetrics()
	packets.WithLabelValues(role, direction, code).Inc()
}

func RecordOperation(role, kind, response string, duration time.Duration) {
	RegisterMetrics()
	operations.WithLabelValues(role, kind, response).Inc()
	operationDuration.WithLabelValues(role, kind).Observe(duration.Seconds())
}

func RecordAbort(role string) {
	RegisterMetrics()
	aborts.WithLabelValues(role).Inc()
}

func SessionOpened(role string) {
	RegisterMetrics()
	sessions.WithLabelValues(role).Inc()
}

func SessionClosed(role string) {
	RegisterMetrics()
	sessions.WithLabelValues(role).Dec()
}
