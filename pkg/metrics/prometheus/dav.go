package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/browncloud/davfs/pkg/metrics"
)

// davMetrics is the Prometheus implementation of metrics.DAVMetrics.
type davMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	denialsTotal     *prometheus.CounterVec
	quotaRejections  *prometheus.CounterVec
	bytesTransferred *prometheus.CounterVec
}

// NewDAVMetrics creates a Prometheus-backed metrics.DAVMetrics, or a no-op
// instance when metrics are disabled.
func NewDAVMetrics() metrics.DAVMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopDAVMetrics()
	}

	reg := metrics.GetRegistry()

	return &davMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davfs_requests_total",
				Help: "Total number of WebDAV requests by method, mount and status",
			},
			[]string{"method", "mount", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "davfs_request_duration_milliseconds",
				Help:    "Duration of WebDAV requests in milliseconds",
				Buckets: []float64{1, 10, 100, 1000, 10000},
			},
			[]string{"method", "mount"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "davfs_requests_in_flight",
				Help: "Current number of WebDAV requests being processed",
			},
			[]string{"method"},
		),
		denialsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davfs_denials_total",
				Help: "Authorization rejections by method and mount",
			},
			[]string{"method", "mount"},
		),
		quotaRejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davfs_quota_rejections_total",
				Help: "Writes stopped by a quota ceiling, by mount",
			},
			[]string{"mount"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davfs_bytes_transferred_total",
				Help: "Payload bytes by mount and direction",
			},
			[]string{"mount", "direction"},
		),
	}
}

func (m *davMetrics) RecordRequest(method, mount string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, mount, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, mount).Observe(float64(duration.Milliseconds()))
}

func (m *davMetrics) RecordDenial(method, mount string) {
	m.denialsTotal.WithLabelValues(method, mount).Inc()
}

func (m *davMetrics) RecordQuotaRejection(mount string) {
	m.quotaRejections.WithLabelValues(mount).Inc()
}

func (m *davMetrics) AddBytesTransferred(mount, direction string, n int64) {
	if n > 0 {
		m.bytesTransferred.WithLabelValues(mount, direction).Add(float64(n))
	}
}

func (m *davMetrics) RequestStarted(method string) {
	m.requestsInFlight.WithLabelValues(method).Inc()
}

func (m *davMetrics) RequestFinished(method string) {
	m.requestsInFlight.WithLabelValues(method).Dec()
}
