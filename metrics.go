package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scenarioCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fresque_scenario_cache_hits_total",
			Help: "Scenario computations served from the cache, by engine.",
		},
		[]string{"engine"},
	)

	scenarioCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fresque_scenario_cache_misses_total",
			Help: "Scenario computations that ran the simulation, by engine.",
		},
		[]string{"engine"},
	)

	scenarioCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fresque_scenario_cache_evictions_total",
			Help: "Scenario results evicted from a full cache.",
		},
	)

	scenarioSimulationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fresque_simulation_failures_total",
			Help: "Simulation runs that returned an error, by engine.",
		},
		[]string{"engine"},
	)

	scenarioComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fresque_simulation_duration_seconds",
			Help:    "Duration of simulation runs on cache misses.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	formulaFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fresque_formula_errors_total",
			Help: "Formula evaluations that failed, by error kind.",
		},
		[]string{"kind"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fresque_http_requests_total",
			Help: "HTTP requests served by route and status.",
		},
		[]string{"route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fresque_http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// recordFormulaError counts a failed formula by kind
func recordFormulaError(err error) {
	kind := "other"
	var fe *FormulaError
	if errors.As(err, &fe) {
		kind = fe.Kind.String()
	}
	formulaFailures.WithLabelValues(kind).Inc()
}

// MetricsHandler exposes the default Prometheus registry
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// instrument wraps a handler with request count and duration metrics
func instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
