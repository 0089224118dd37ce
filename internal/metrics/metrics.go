package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voxbatch"

// Pipeline metrics, updated by the batch package.
var (
	ItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_total",
		Help:      "Media items processed, by outcome.",
	}, []string{"outcome"})

	ItemFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "item_failures_total",
		Help:      "Failed media items, by pipeline stage.",
	}, []string{"stage"})

	ItemDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "item_duration_seconds",
		Help:      "Wall time to extract and transcribe one item.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s → ~17min
	}, []string{"kind"})

	ExtractDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extract_duration_seconds",
		Help:      "Wall time spent in ffmpeg audio extraction.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time for a full batch run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_downloads_total",
		Help:      "Model weight downloads, by outcome.",
	}, []string{"outcome"})

	DownloadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_download_bytes_total",
		Help:      "Bytes received while downloading model weights.",
	})

	ReportsStored = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reports_stored",
		Help:      "Persisted reports currently available for download.",
	})
)

// HTTP metrics, updated by InstrumentHandler.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"method", "path_pattern"})
)

func init() {
	prometheus.MustRegister(
		ItemsTotal,
		ItemFailuresTotal,
		ItemDuration,
		ExtractDuration,
		BatchDuration,
		DownloadsTotal,
		DownloadBytes,
		ReportsStored,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// InstrumentHandler records request metrics labelled by chi's route pattern
// so upload paths do not explode label cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		pattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
