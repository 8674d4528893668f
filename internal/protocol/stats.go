package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Stats struct {
	Runs         *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	MetricMisses prometheus.Counter
}

// NewStats registers the interpreter metrics with reg; nil leaves them
// unregistered.
func NewStats(reg prometheus.Registerer) *Stats {
	factory := promauto.With(reg)

	return &Stats{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rigctl",
			Subsystem: "protocol",
			Name:      "runs_total",
			Help:      "Finished protocol runs by outcome.",
		}, []string{"outcome"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rigctl",
			Subsystem: "protocol",
			Name:      "step_duration_seconds",
			Help:      "Time spent executing protocol steps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"op"}),
		MetricMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rigctl",
			Subsystem: "protocol",
			Name:      "metric_no_data_total",
			Help:      "Metric bindings skipped because the step recorded no rows.",
		}),
	}
}
