package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	syncpkg "github.com/wesm/clinicview/internal/sync"
)

const metricsNamespace = "clinicview"

// serverMetrics holds the collectors of one Server. Each server
// owns its registry so tests can run servers side by side.
type serverMetrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	computations  *prometheus.CounterVec
	staleResults  prometheus.Counter
	importRecords prometheus.Counter
	importFailed  prometheus.Counter
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching one record collection.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_errors_total",
			Help:      "Collection fetches that failed or timed out.",
		}, []string{"collection"}),
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "computations_total",
			Help:      "Snapshots and comparisons computed.",
		}, []string{"kind"}),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stale_results_total",
			Help:      "Watch results dropped because a newer one was requested.",
		}),
		importRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "import_records_total",
			Help:      "Records written by syncs and uploads.",
		}),
		importFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "import_failed_files_total",
			Help:      "Export files that could not be imported.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.fetchDuration, m.fetchErrors,
		m.computations, m.staleResults,
		m.importRecords, m.importFailed,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeFetch is installed as the loader's observer.
func (m *serverMetrics) observeFetch(
	collection string, took time.Duration, _ int, err error,
) {
	m.fetchDuration.WithLabelValues(collection).Observe(took.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(collection).Inc()
	}
}

func (m *serverMetrics) computed(kind string) {
	m.computations.WithLabelValues(kind).Inc()
}

func (m *serverMetrics) observeSync(stats syncpkg.SyncStats) {
	m.importRecords.Add(float64(stats.Records))
	m.importFailed.Add(float64(stats.Failed))
}

// instrument counts requests by matched route pattern so ids in
// paths do not explode label cardinality.
func (m *serverMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(
			r.Method, route, strconv.Itoa(rec.code()),
		).Inc()
	})
}
