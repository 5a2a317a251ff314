package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "session_gateway"

// Metrics holds the gateway collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	reconnectAttempts prometheus.Counter
	disconnects       *prometheus.CounterVec
	pairingCodes      prometheus.Counter
	restorations      *prometheus.CounterVec
	storeErrors       *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts after a retryable disconnect.",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "disconnects_total",
			Help:      "Transport disconnects by disposition and reason.",
		}, []string{"disposition", "reason"}),
		pairingCodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "pairing_codes_total",
			Help:      "Pairing codes issued by the transport.",
		}),
		restorations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "restorations_total",
			Help:      "Startup restorations by result.",
		}, []string{"result"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "write_errors_total",
			Help:      "Durable store write-through failures.",
		}, []string{"op"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message",
			Name:      "sent_total",
			Help:      "Outbound messages by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reconnectAttempts,
		m.disconnects,
		m.pairingCodes,
		m.restorations,
		m.storeErrors,
		m.messagesSent,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// TrackActiveConnections exposes the registry size as a gauge sampled on scrape.
func (m *Metrics) TrackActiveConnections(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "active_connections",
		Help:      "Sessions currently tracked in the connection registry.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) ReconnectAttempt() {
	m.reconnectAttempts.Inc()
}

func (m *Metrics) Disconnect(disposition, reason string) {
	m.disconnects.WithLabelValues(disposition, reason).Inc()
}

func (m *Metrics) PairingCode() {
	m.pairingCodes.Inc()
}

func (m *Metrics) Restoration(result string) {
	m.restorations.WithLabelValues(result).Inc()
}

func (m *Metrics) StoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) MessageSent(success bool) {
	m.messagesSent.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
