// Package metrics exposes the fund layer's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fund_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fund_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fund_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	vaultOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fund_layer",
			Subsystem: "vault",
			Name:      "operations_total",
			Help:      "Total number of vault operations.",
		},
		[]string{"operation", "success"},
	)

	vaultTVL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fund_layer",
			Subsystem: "vault",
			Name:      "total_assets",
			Help:      "Total underlying value managed by the vault, smallest units.",
		},
	)

	vaultIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fund_layer",
			Subsystem: "vault",
			Name:      "idle_balance",
			Help:      "Idle (uninvested) underlying balance, smallest units.",
		},
	)

	harvestedRewards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fund_layer",
			Subsystem: "vault",
			Name:      "harvested_rewards_total",
			Help:      "Cumulative rewards harvested across adapters, smallest units.",
		},
	)

	keeperRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fund_layer",
			Subsystem: "keeper",
			Name:      "job_runs_total",
			Help:      "Total number of keeper job executions.",
		},
		[]string{"job", "success"},
	)

	keeperDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fund_layer",
			Subsystem: "keeper",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of keeper job executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		vaultOperations,
		vaultTVL,
		vaultIdle,
		harvestedRewards,
		keeperRuns,
		keeperDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordVaultOperation counts a vault operation outcome.
func RecordVaultOperation(operation string, success bool) {
	vaultOperations.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
}

// SetVaultGauges updates the TVL and idle-balance gauges.
func SetVaultGauges(totalAssets, idle int64) {
	vaultTVL.Set(float64(totalAssets))
	vaultIdle.Set(float64(idle))
}

// AddHarvestedRewards accumulates the harvested-rewards counter.
func AddHarvestedRewards(amount int64) {
	if amount > 0 {
		harvestedRewards.Add(float64(amount))
	}
}

// RecordKeeperRun records a keeper job execution.
func RecordKeeperRun(job string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	keeperRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	keeperDuration.WithLabelValues(job).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "users":
		if len(parts) == 1 {
			return "/users"
		}
		if len(parts) == 2 {
			return "/users/:user"
		}
		return "/users/:user/" + parts[2]
	case "devices", "rentals", "adapters":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) == 2 {
			return "/" + parts[0] + "/:id"
		}
		return "/" + parts[0] + "/:id/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
