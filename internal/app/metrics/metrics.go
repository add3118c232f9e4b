// Package metrics exposes the application's Prometheus collectors.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pocketdev",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pocketdev",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pocketdev",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Jobs finished, by kind and terminal status.",
		},
		[]string{"kind", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pocketdev",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of jobs from start to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"kind"},
	)

	tokensDebited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pocketdev",
			Subsystem: "ledger",
			Name:      "tokens_debited_total",
			Help:      "Total app tokens debited.",
		},
	)

	tokensCredited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pocketdev",
			Subsystem: "ledger",
			Name:      "tokens_credited_total",
			Help:      "Total app tokens credited back (refunds).",
		},
	)
)

func init() {
	Registry.MustRegister(httpRequests, httpDuration, jobsFinished, jobDuration, tokensDebited, tokensCredited)
}

// ObserveJobFinished records a job reaching a terminal status.
func ObserveJobFinished(kind, status string, duration time.Duration) {
	jobsFinished.WithLabelValues(kind, status).Inc()
	if duration > 0 {
		jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// AddTokensDebited records a successful debit.
func AddTokensDebited(amount float64) { tokensDebited.Add(amount) }

// AddTokensCredited records a refund.
func AddTokensCredited(amount float64) { tokensCredited.Add(amount) }

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying writer so websocket upgrades keep working
// behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// Instrument wraps an HTTP handler with request counting and latency
// observation. The path label is the route prefix, not the raw URL, to keep
// cardinality bounded.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
