// Package metrics holds the prometheus collectors for mining, validation and
// storage. Collectors register with the default registry, which the node
// exposes on the debug mux.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "powledger"

var (
	powAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pow",
		Name:      "attempts_total",
		Help:      "Count of Argon2id evaluations made while mining.",
	}, []string{"category"})

	powSolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pow",
		Name:      "solve_total",
		Help:      "Count of mining sessions by outcome.",
	}, []string{"category", "status"})

	powSolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pow",
		Name:      "solve_seconds",
		Help:      "Duration of mining sessions.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"category", "status"})

	validationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "checks_total",
		Help:      "Count of validation checks by outcome.",
	}, []string{"stage", "status"})

	validationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "duration_seconds",
		Help:      "Duration of validation checks.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage", "status"})

	storeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Count of key value store operations.",
	}, []string{"backend", "op", "status"})
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// =============================================================================

// Miner tracks metrics for mining sessions of one difficulty category.
type Miner struct {
	category string
}

// NewMiner constructs a Miner for the specified category.
func NewMiner(category string) Miner {
	if category == "" {
		category = "unknown"
	}
	return Miner{category: category}
}

// ObserveAttempts records a number of hash evaluations.
func (m Miner) ObserveAttempts(n int) {
	powAttemptsTotal.WithLabelValues(m.category).Add(float64(n))
}

// ObserveSolve records the outcome and duration of a mining session.
func (m Miner) ObserveSolve(err error, started time.Time) {
	s := status(err)
	powSolveTotal.WithLabelValues(m.category, s).Inc()
	powSolveDuration.WithLabelValues(m.category, s).Observe(time.Since(started).Seconds())
}

// =============================================================================

// Validator tracks metrics for one validation stage.
type Validator struct {
	stage string
}

// NewValidator constructs a Validator for the specified stage.
func NewValidator(stage string) Validator {
	if stage == "" {
		stage = "unknown"
	}
	return Validator{stage: stage}
}

// Observe records the outcome and duration of a check.
func (v Validator) Observe(err error, started time.Time) {
	s := status(err)
	validationTotal.WithLabelValues(v.stage, s).Inc()
	validationDuration.WithLabelValues(v.stage, s).Observe(time.Since(started).Seconds())
}

// =============================================================================

// Store tracks metrics for a key value store backend.
type Store struct {
	backend string
}

// NewStore constructs a Store for the specified backend.
func NewStore(backend string) Store {
	if backend == "" {
		backend = "unknown"
	}
	return Store{backend: backend}
}

// ObserveOp records the outcome of a store operation.
func (s Store) ObserveOp(op string, err error) {
	storeOpsTotal.WithLabelValues(s.backend, op, status(err)).Inc()
}

// =============================================================================

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of requests handled by the node by status code.",
	}, []string{"code"})

	errorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "Count of requests that returned an error.",
	})

	panicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "panics_total",
		Help:      "Count of handler panics recovered.",
	})
)

// ObserveRequest records a handled request and whether it failed.
func ObserveRequest(statusCode int, err error) {
	requestsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	if err != nil {
		errorsTotal.Inc()
	}
}

// AddPanic records a recovered handler panic.
func AddPanic() {
	panicsTotal.Inc()
}
