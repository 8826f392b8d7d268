package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total API requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight",
		Help: "In-flight HTTP requests",
	})

	DispatchGroups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_groups_total",
			Help: "Recipe groups dispatched, by terminal state",
		}, []string{"state"},
	)
	WorkerLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_worker_request_duration_seconds",
		Help:    "Integration worker call latency seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})
	DuplicateConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_duplicate_conflicts_total",
		Help: "409 duplicate responses treated as delivered",
	})
	StatusWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_status_write_failures_total",
		Help: "Integration status writes that failed and were dropped",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal, Latency, InFlight,
		DispatchGroups, WorkerLatency, DuplicateConflicts, StatusWriteFailures)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
