package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "active_sessions",
		Help:      "Number of live (not destroyed) sessions.",
	})

	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "sessions_created_total",
		Help:      "Total sessions created.",
	})

	SessionsEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "sessions_evicted_total",
		Help:      "Total sessions evicted to make room under the capacity bound.",
	})

	SessionsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "sessions_swept_total",
		Help:      "Total sessions destroyed by the idle sweep.",
	})

	StreamsOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "streams_opened_total",
		Help:      "Total byte streams opened against sessions.",
	})

	StreamBytesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "stream_bytes_sent_total",
		Help:      "Total content bytes written to streaming clients.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "download_speed_bytes",
		Help:      "Current aggregate download speed in bytes per second.",
	})

	UploadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "upload_speed_bytes",
		Help:      "Current aggregate upload speed in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "peers_connected",
		Help:      "Total peers connected across all sessions.",
	})

	MemoryResidentBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "piece_memory_resident_bytes",
		Help:      "Piece data currently held in volatile memory.",
	})

	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "search_requests_total",
		Help:      "Total search requests by outcome.",
	}, []string{"outcome"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		SessionsCreatedTotal,
		SessionsEvictedTotal,
		SessionsSweptTotal,
		StreamsOpenedTotal,
		StreamBytesSentTotal,
		DownloadSpeedBytes,
		UploadSpeedBytes,
		PeersConnected,
		MemoryResidentBytes,
		SearchRequestsTotal,
	)
}
