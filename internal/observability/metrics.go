package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gridwire"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	decodedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "decoded_total",
			Help:      "Datagrams decoded, by message name and result.",
		},
		[]string{"node", "message", "result"},
	)
	encodedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "encoded_total",
			Help:      "Messages encoded, by message name and result.",
		},
		[]string{"node", "message", "result"},
	)
	datagramBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "circuit",
			Name:      "datagram_bytes",
			Help:      "Datagram sizes seen on the circuit endpoint.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 13),
		},
		[]string{"node", "direction"},
	)
	handleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "circuit",
			Name:      "handle_duration_seconds",
			Help:      "Time spent decoding and dispatching one datagram.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, decodedMessages, encodedMessages, datagramBytes, handleDuration)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordDecode counts one decode attempt. message is empty when the type
// could not be resolved; result is "ok" or an error reason label.
func RecordDecode(node, message, result string) {
	RegisterMetrics()
	if message == "" {
		message = "unknown"
	}
	decodedMessages.WithLabelValues(node, message, result).Inc()
}

func RecordEncode(node, message, result string) {
	RegisterMetrics()
	encodedMessages.WithLabelValues(node, message, result).Inc()
}

// RecordDatagram observes one datagram; direction is "in" or "out".
func RecordDatagram(node, direction string, size int) {
	RegisterMetrics()
	datagramBytes.WithLabelValues(node, direction).Observe(float64(size))
}

func RecordHandle(node string, duration time.Duration) {
	RegisterMetrics()
	handleDuration.WithLabelValues(node).Observe(duration.Seconds())
}
