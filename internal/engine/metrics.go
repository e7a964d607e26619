package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for pipeline evaluation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	shared         *prometheus.CounterVec
	committed      *prometheus.CounterVec
	discarded      *prometheus.CounterVec
	invalidations  *prometheus.CounterVec
	evalDuration   *prometheus.HistogramVec
	poolQueueDepth prometheus.Gauge
	poolProcessed  prometheus.Counter
	poolPanics     prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
// Metrics that are already registered under the same name are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_cache_hits_total",
			Help: "Evaluations answered from a node's cache",
		}, []string{"node"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_cache_misses_total",
			Help: "Evaluations that started a new computation",
		}, []string{"node"}),
		shared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_evaluations_shared_total",
			Help: "Evaluations that joined an in-flight computation",
		}, []string{"node"}),
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_results_committed_total",
			Help: "Computed states stored in a node's cache",
		}, []string{"node"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_results_discarded_total",
			Help: "Computed states not stored because they were superseded",
		}, []string{"node", "reason"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_cache_invalidations_total",
			Help: "Cache invalidations",
		}, []string{"node"}),
		evalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowstate_evaluation_duration_seconds",
			Help:    "Time from starting a computation to its result",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"node", "outcome"}),
		poolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowstate_pool_queue_depth",
			Help: "Jobs waiting for a worker",
		}),
		poolProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_pool_processed_total",
			Help: "Jobs run by the worker pool",
		}),
		poolPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_pool_panics_total",
			Help: "Worker pool jobs that panicked",
		}),
	}

	var err error
	m.cacheHits = registerOrReuse(reg, m.cacheHits, &err)
	m.cacheMisses = registerOrReuse(reg, m.cacheMisses, &err)
	m.shared = registerOrReuse(reg, m.shared, &err)
	m.committed = registerOrReuse(reg, m.committed, &err)
	m.discarded = registerOrReuse(reg, m.discarded, &err)
	m.invalidations = registerOrReuse(reg, m.invalidations, &err)
	m.evalDuration = registerOrReuse(reg, m.evalDuration, &err)
	m.poolQueueDepth = registerOrReuse(reg, m.poolQueueDepth, &err)
	m.poolProcessed = registerOrReuse(reg, m.poolProcessed, &err)
	m.poolPanics = registerOrReuse(reg, m.poolPanics, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers c, returning the already registered collector
// if one exists. The first other error is stored in *errp.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

// CacheHit records an evaluation answered from cache.
func (m *Metrics) CacheHit(node string) {
	if m != nil {
		m.cacheHits.WithLabelValues(node).Inc()
	}
}

// CacheMiss records an evaluation that started a computation.
func (m *Metrics) CacheMiss(node string) {
	if m != nil {
		m.cacheMisses.WithLabelValues(node).Inc()
	}
}

// Shared records an evaluation that joined an in-flight computation.
func (m *Metrics) Shared(node string) {
	if m != nil {
		m.shared.WithLabelValues(node).Inc()
	}
}

// Committed records a result stored in cache.
func (m *Metrics) Committed(node string) {
	if m != nil {
		m.committed.WithLabelValues(node).Inc()
	}
}

// Discarded records a result that was not stored, and why.
func (m *Metrics) Discarded(node, reason string) {
	if m != nil {
		m.discarded.WithLabelValues(node, reason).Inc()
	}
}

// Invalidated records a cache invalidation.
func (m *Metrics) Invalidated(node string) {
	if m != nil {
		m.invalidations.WithLabelValues(node).Inc()
	}
}

// ObserveEvaluation records how long a computation took.
func (m *Metrics) ObserveEvaluation(node, outcome string, d time.Duration) {
	if m != nil {
		m.evalDuration.WithLabelValues(node, outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) poolDepth(n int) {
	if m != nil {
		m.poolQueueDepth.Set(float64(n))
	}
}

func (m *Metrics) poolJobDone(panicked bool) {
	if m != nil {
		m.poolProcessed.Inc()
		if panicked {
			m.poolPanics.Inc()
		}
	}
}
