// Package metrics exposes Prometheus metrics for the HTTP surface and the
// scan pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtiwari1/scanvault/internal/scanner"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanvault_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scanvault_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	scanVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanvault_scan_verdicts_total",
			Help: "Finished scans by verdict status; fallback=true marks runs without a real engine.",
		},
		[]string{"status", "fallback"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanvault_scan_duration_seconds",
			Help:    "Wall time of a single engine run, probe included.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	uploadsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanvault_uploads_rejected_total",
			Help: "Uploads refused before any record was created.",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Middleware records request counts and latency. Routes are labelled by the
// ServeMux pattern, so path parameters do not inflate cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ScanObserver feeds scan outcomes into the verdict metrics. It satisfies
// worker.Observer.
type ScanObserver struct{}

// ObserveScan implements worker.Observer.
func (ScanObserver) ObserveScan(status scanner.Status, fallback bool, latency time.Duration) {
	scanVerdicts.WithLabelValues(string(status), strconv.FormatBool(fallback)).Inc()
	scanDuration.Observe(latency.Seconds())
}

// UploadRejected counts an upload refused at the gate.
func UploadRejected() { uploadsRejected.Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
