package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpRequestsTotal       *prometheus.CounterVec
	httpLatencySeconds      *prometheus.HistogramVec
	httpErrorsTotal         *prometheus.CounterVec
	messagesSentTotal       *prometheus.CounterVec
	notificationsPushed     *prometheus.CounterVec
	pushFanoutLatency       prometheus.Histogram
	broadcastTruncatedTotal prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the messaging core.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Messages appended to the conversation store, by kind.",
		}, []string{"kind"})

		notificationsPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_pushed_total",
			Help: "Push delivery attempts, by notification type and outcome.",
		}, []string{"type", "outcome"})

		pushFanoutLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "push_fanout_latency_seconds",
			Help:    "Wall time spent fanning one event out to all recipients.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		})

		broadcastTruncatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_truncated_total",
			Help: "Broadcast dispatches whose audience exceeded the delivery cap.",
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			messagesSentTotal, notificationsPushed, pushFanoutLatency,
			broadcastTruncatedTotal,
		)
	})
}

// HTTPRequests exposes the counter for served requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// MessagesSent exposes the counter for appended messages.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// NotificationsPushed exposes the counter for push attempts.
func NotificationsPushed() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPushed
}

// PushFanoutLatency exposes the fan-out latency histogram.
func PushFanoutLatency() prometheus.Histogram {
	RegisterMetrics()
	return pushFanoutLatency
}

// BroadcastTruncated exposes the counter for capped broadcasts.
func BroadcastTruncated() prometheus.Counter {
	RegisterMetrics()
	return broadcastTruncatedTotal
}
