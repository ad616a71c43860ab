package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes HTTP request latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// ProblemsSubmittedTotal counts accepted submissions by problem type.
	ProblemsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "problems_submitted_total",
			Help: "Total number of problems submitted",
		},
		[]string{"problem_type", "problem_name"},
	)
	// SolvesTotal counts completed solves by terminal status.
	SolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solves_total",
			Help: "Total number of solve attempts by terminal status",
		},
		[]string{"problem_type", "status"},
	)
	// SolveDuration observes wall-clock solve time.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solve_duration_seconds",
			Help:    "Solver wall-clock duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300},
		},
		[]string{"problem_type"},
	)

	// QueuePublishesTotal counts broker publishes by queue.
	QueuePublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_publishes_total",
			Help: "Total number of messages published to the broker",
		},
		[]string{"queue"},
	)
	// QueueAcksTotal counts consumer settlements by queue and outcome.
	QueueAcksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_acks_total",
			Help: "Total number of consumer acks/nacks",
		},
		[]string{"queue", "outcome"},
	)

	// StreamSubscribers gauges current SSE subscribers.
	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_subscribers",
			Help: "Number of currently connected result-stream subscribers",
		},
	)
	// StreamDropsTotal counts frames dropped on full subscriber channels.
	StreamDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_drops_total",
			Help: "Total number of frames dropped due to slow subscribers",
		},
	)
)

// InitMetrics registers all collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ProblemsSubmittedTotal)
	prometheus.MustRegister(SolvesTotal)
	prometheus.MustRegister(SolveDuration)
	prometheus.MustRegister(QueuePublishesTotal)
	prometheus.MustRegister(QueueAcksTotal)
	prometheus.MustRegister(StreamSubscribers)
	prometheus.MustRegister(StreamDropsTotal)
}

// HTTPMetricsMiddleware records request counts and durations per chi route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
