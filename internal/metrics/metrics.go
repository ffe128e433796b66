package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Lookup outcomes: hit, miss, dirty_evicted, disabled.
	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegate_lookups_total",
			Help: "Cache lookups by outcome.",
		},
		[]string{"result"},
	)

	// Store outcomes: stored, pii_rejected, disabled, error.
	StoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegate_stores_total",
			Help: "Cache store attempts by outcome.",
		},
		[]string{"outcome"},
	)

	PIIFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegate_pii_findings_total",
			Help: "PII findings by category and detector source.",
		},
		[]string{"category", "source"},
	)

	// Entries evicted on a hit because the safety-net re-scan flagged them.
	SafetyNetEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cachegate_safety_net_evictions_total",
			Help: "Cached entries evicted after failing the safety-net re-scan.",
		},
	)

	// Sweep evictions: expired, over_cap.
	SweepEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegate_sweep_evicted_total",
			Help: "Entries evicted by the retention sweeper, by reason.",
		},
		[]string{"reason"},
	)

	// Data subject requests: access, delete.
	DataSubjectRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegate_data_subject_requests_total",
			Help: "Data subject requests by type.",
		},
		[]string{"type"},
	)

	StoreOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cachegate_store_op_seconds",
			Help:    "Storage operation latency by tier and operation.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"tier", "op"},
	)

	// Histogram: HTTP latency in seconds.
	HTTPLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cachegate_http_latency_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		LookupsTotal,
		StoresTotal,
		PIIFindingsTotal,
		SafetyNetEvictionsTotal,
		SweepEvictedTotal,
		DataSubjectRequestsTotal,
		StoreOpSeconds,
		HTTPLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		HTTPLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
