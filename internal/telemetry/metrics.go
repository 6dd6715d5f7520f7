package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fcmsim"

var ErrRegistrationFailed = errors.New("metric registration failed")

// Metrics records what-if search progress. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	generations prometheus.Counter
	evaluations prometheus.Counter
	bestFitness prometheus.Histogram
	runDuration prometheus.Histogram
}

// New registers the what-if metrics on reg. A nil reg uses a private
// registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatif",
			Name:      "runs_total",
			Help:      "Completed GA runs by outcome (done, capped, failed).",
		}, []string{"outcome"}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatif",
			Name:      "generations_total",
			Help:      "Graded generations across all runs.",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fcm",
			Name:      "evaluations_total",
			Help:      "Solver evaluations of individual gene vectors.",
		}),
		bestFitness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "whatif",
			Name:      "best_fitness",
			Help:      "Best fitness at the end of each run.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.03, 0.05, 0.1, 0.2, 0.5, 1},
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "whatif",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single GA run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.generations, m.evaluations, m.bestFitness, m.runDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
		}
	}
	return m, nil
}

// ObserveGeneration counts one graded generation of size individuals.
func (m *Metrics) ObserveGeneration(size int) {
	if m == nil {
		return
	}
	m.generations.Inc()
	m.evaluations.Add(float64(size))
}

func (m *Metrics) ObserveRun(outcome string, bestFitness float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if outcome != OutcomeFailed {
		m.bestFitness.Observe(bestFitness)
	}
	m.runDuration.Observe(elapsed.Seconds())
}

const (
	OutcomeDone   = "done"
	OutcomeCapped = "capped"
	OutcomeFailed = "failed"
)
