package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lokal_notify_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lokal_notify_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lokal_notify_notifications_created_total",
			Help: "Total notifications created by type",
		},
		[]string{"type"},
	)

	fanoutRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lokal_notify_fanout_recipients",
			Help:    "Recipients per fan-out batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	emailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lokal_notify_emails_total",
			Help: "Email dispatch attempts by result",
		},
		[]string{"result"},
	)

	sweeperRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lokal_notify_sweeper_runs_total",
			Help: "Sweeper passes by kind",
		},
		[]string{"kind"},
	)

	notificationsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lokal_notify_notifications_deleted_total",
			Help: "Notifications removed by the retention sweep",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotificationCreated counts one created notification
func RecordNotificationCreated(typ string) {
	notificationsCreated.WithLabelValues(typ).Inc()
}

// RecordFanout records the size of one fan-out batch
func RecordFanout(recipients int) {
	fanoutRecipients.Observe(float64(recipients))
}

// RecordEmail counts one email dispatch attempt ("sent" or "failed")
func RecordEmail(result string) {
	emailsTotal.WithLabelValues(result).Inc()
}

// RecordSweep counts one sweeper pass ("scheduled" or "retention")
func RecordSweep(kind string) {
	sweeperRuns.WithLabelValues(kind).Inc()
}

// RecordNotificationsDeleted counts rows removed by retention
func RecordNotificationsDeleted(n int64) {
	notificationsDeleted.Add(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
