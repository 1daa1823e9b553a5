package transport

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus instrumentation for a Transport. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	phaseDuration   *prometheus.HistogramVec
	connsOpened     prometheus.Counter
	connsFailed     prometheus.Counter
	connsEvicted    *prometheus.CounterVec
}

// NewMetrics registers the transport metrics on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)
	return &Metrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etcd_transport_requests_total",
				Help: "Total number of completed requests",
			},
			[]string{"method", "status"},
		),
		failuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etcd_transport_failures_total",
				Help: "Total number of failed requests by stage",
			},
			[]string{"stage"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etcd_transport_request_duration_seconds",
				Help:    "Duration of completed requests in seconds",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method"},
		),
		phaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etcd_transport_phase_duration_seconds",
				Help:    "Time spent in the write and read phases in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"phase"},
		),
		connsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "etcd_transport_connections_opened_total",
			Help: "Total number of connections dialed",
		}),
		connsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "etcd_transport_connections_failed_total",
			Help: "Total number of failed dials",
		}),
		connsEvicted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etcd_transport_connections_evicted_total",
				Help: "Total number of connections closed after a failure",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) request(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) failure(stage string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) phase(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connsOpened.Inc()
}

func (m *Metrics) connectFailed() {
	if m == nil {
		return
	}
	m.connsFailed.Inc()
}

func (m *Metrics) connEvicted(reason string) {
	if m == nil {
		return
	}
	m.connsEvicted.WithLabelValues(reason).Inc()
}
