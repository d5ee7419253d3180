package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	requestsTotal         *prometheus.CounterVec
	requestLatencySeconds *prometheus.HistogramVec
	messagesPostedTotal   prometheus.Counter
	postFailuresTotal     *prometheus.CounterVec
	tagAllocationsTotal   *prometheus.CounterVec
	tagProbeDepth         prometheus.Histogram
	streamClients         prometheus.Gauge
	notifierVersion       prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "board_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "board_request_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		messagesPostedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "board_messages_posted_total",
			Help: "Total number of messages accepted by the board.",
		})

		postFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "board_post_failures_total",
			Help: "Total number of rejected post attempts.",
		}, []string{"reason"})

		tagAllocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "board_tag_allocations_total",
			Help: "Tag allocator resolutions by outcome.",
		}, []string{"outcome"})

		tagProbeDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "board_tag_probe_depth",
			Help:    "Number of insert probes needed to allocate a tag.",
			Buckets: []float64{1, 2, 4, 8, 16, 64, 256, 1024, 4096},
		})

		streamClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "board_stream_clients",
			Help: "Current number of connected live readers.",
		})

		notifierVersion = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "board_notifier_version",
			Help: "Current value of the board change counter.",
		})

		prometheus.MustRegister(
			requestsTotal,
			requestLatencySeconds,
			messagesPostedTotal,
			postFailuresTotal,
			tagAllocationsTotal,
			tagProbeDepth,
			streamClients,
			notifierVersion,
		)
	})
}

// Requests exposes the counter for served requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// RequestLatency exposes the latency histogram for served requests.
func RequestLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}

// MessagesPosted exposes the counter for accepted messages.
func MessagesPosted() prometheus.Counter {
	RegisterMetrics()
	return messagesPostedTotal
}

// PostFailures exposes the counter for rejected post attempts.
func PostFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return postFailuresTotal
}

// TagAllocations exposes the counter for allocator outcomes.
func TagAllocations() *prometheus.CounterVec {
	RegisterMetrics()
	return tagAllocationsTotal
}

// TagProbeDepth exposes the histogram of probe counts per allocation.
func TagProbeDepth() prometheus.Histogram {
	RegisterMetrics()
	return tagProbeDepth
}

// StreamClients exposes the gauge of connected live readers.
func StreamClients() prometheus.Gauge {
	RegisterMetrics()
	return streamClients
}

// NotifierVersion exposes the gauge mirroring the change counter.
func NotifierVersion() prometheus.Gauge {
	RegisterMetrics()
	return notifierVersion
}
