package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rigctl"

// Stats instruments the acquisition loop.
type Stats struct {
	Ticks                prometheus.Counter
	HardwareErrors       *prometheus.CounterVec
	CalibrationFallbacks prometheus.Counter
	BridgeDropped        prometheus.Counter
	TraceRows            prometheus.Gauge
	TickDuration         prometheus.Histogram
}

// NewStats creates the loop metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewStats(reg prometheus.Registerer) *Stats {
	factory := promauto.With(reg)

	return &Stats{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "ticks_total",
			Help:      "Number of acquisition ticks.",
		}),
		HardwareErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "hardware_errors_total",
			Help:      "Sensor reads that failed and were replaced by last-known values.",
		}, []string{"source"}),
		CalibrationFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "calibration_fallbacks_total",
			Help:      "Ticks recorded with raw passthrough because calibration failed.",
		}),
		BridgeDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "bridge_dropped_total",
			Help:      "Snapshots overwritten before the display drained them.",
		}),
		TraceRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "trace_rows",
			Help:      "Rows recorded in the current run trace.",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "tick_duration_seconds",
			Help:      "Time spent sampling collaborators per tick.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
}
