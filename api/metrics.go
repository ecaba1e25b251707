// Package api provides Prometheus metrics and a JSON status endpoint for
// a transportd process.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric exported by a transportd
// process.
type Metrics struct {
	// Discovery metrics
	TopicsDiscovered   prometheus.Counter
	TopicsLost         prometheus.Counter
	ServicesDiscovered prometheus.Counter
	ServicesLost       prometheus.Counter
	KnownPeers         prometheus.Gauge

	// Pub/sub metrics
	MessagesPublished prometheus.Counter
	MessagesReceived  prometheus.Counter
	ActiveSubscribers prometheus.Gauge
	ActivePublishers  prometheus.Gauge

	// Service-call metrics
	RequestsTotal    *prometheus.CounterVec
	RequestLatency   prometheus.Histogram
	ActiveRepliers   prometheus.Gauge
	PendingRequests  prometheus.Gauge
}

// DefaultMetrics is the process-wide Metrics instance, namespaced
// "ign_transport".
var DefaultMetrics = NewMetrics("ign_transport")

// NewMetrics creates a new Metrics instance with the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TopicsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_discovered_total",
			Help:      "Total number of remote topic publishers discovered",
		}),
		TopicsLost: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_lost_total",
			Help:      "Total number of remote topic publishers that went away",
		}),
		ServicesDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "services_discovered_total",
			Help:      "Total number of remote service responders discovered",
		}),
		ServicesLost: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "services_lost_total",
			Help:      "Total number of remote service responders that went away",
		}),
		KnownPeers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_peers",
			Help:      "Current number of processes seen via discovery heartbeats",
		}),

		MessagesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total number of messages published",
		}),
		MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages delivered to local subscribers",
		}),
		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscribers",
			Help:      "Current number of locally registered subscription handlers",
		}),
		ActivePublishers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_publishers",
			Help:      "Current number of topics locally advertised",
		}),

		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total service requests issued, by outcome",
		}, []string{"outcome"}),
		RequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Service request round-trip latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		ActiveRepliers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_repliers",
			Help:      "Current number of locally advertised services",
		}),
		PendingRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Current number of in-flight outbound service requests",
		}),
	}
}

// RecordDiscovery records a topic publisher discovery (or loss) event.
func (m *Metrics) RecordDiscovery(found bool) {
	if found {
		m.TopicsDiscovered.Inc()
	} else {
		m.TopicsLost.Inc()
	}
}

// RecordServiceDiscovery records a service responder discovery (or loss)
// event.
func (m *Metrics) RecordServiceDiscovery(found bool) {
	if found {
		m.ServicesDiscovered.Inc()
	} else {
		m.ServicesLost.Inc()
	}
}

// RecordPublish records an outbound message publication.
func (m *Metrics) RecordPublish() {
	m.MessagesPublished.Inc()
}

// RecordDelivery records a message handed to a local subscription
// callback.
func (m *Metrics) RecordDelivery() {
	m.MessagesReceived.Inc()
}

// RecordRequest records a completed service request.
func (m *Metrics) RecordRequest(ok bool, duration time.Duration) {
	m.RequestLatency.Observe(duration.Seconds())
	if ok {
		m.RequestsTotal.WithLabelValues("ok").Inc()
	} else {
		m.RequestsTotal.WithLabelValues("failed").Inc()
	}
}

// UpdateKnownPeers sets the known-peers gauge.
func (m *Metrics) UpdateKnownPeers(n int) {
	m.KnownPeers.Set(float64(n))
}

// MetricsServer runs an HTTP server exposing /metrics (Prometheus) and
// /status (JSON snapshot, when a snapshot function is supplied).
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics/status server on addr. snapshot, if
// non-nil, is called on every GET /status and its return value is
// marshaled as JSON.
func NewMetricsServer(addr string, snapshot func() any) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if snapshot != nil {
		mux.HandleFunc("/status", newStatusHandler(snapshot))
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// newStatusHandler returns an http.HandlerFunc that marshals snapshot's
// return value as JSON on every request.
func newStatusHandler(snapshot func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
