package metrics

import (
	"strings"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
)

// Metric is a scalar summary of one protocol step's trace rows.
type Metric int

const (
	MinForce Metric = iota
	MaxForce
	FinalForce
	MinAngle
	MaxAngle
	FinalAngle
	StartTime
	FinalTime
	TotalTime
)

var metricNames = [...]string{
	MinForce:   "min_force",
	MaxForce:   "max_force",
	FinalForce: "final_force",
	MinAngle:   "min_angle",
	MaxAngle:   "max_angle",
	FinalAngle: "final_angle",
	StartTime:  "start_time",
	FinalTime:  "final_time",
	TotalTime:  "total_time",
}

func (m Metric) String() string {
	if m < 0 || int(m) >= len(metricNames) {
		return "unknown"
	}
	return metricNames[m]
}

// ParseMetric accepts the protocol spelling, case-insensitively.
func ParseMetric(s string) (Metric, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range metricNames {
		if n == name {
			return Metric(i), nil
		}
	}
	return 0, errors.New().WithData(ErrUnknownMetric, s)
}

// IsMetric reports whether s names a metric.
func IsMetric(s string) bool {
	_, err := ParseMetric(s)
	return err == nil
}

type field int

const (
	fieldTime field = iota
	fieldForce
	fieldAngle
)

type reduction int

const (
	reduceMin reduction = iota
	reduceMax
	reduceFirst
	reduceLast
	reduceSpan
)

func (m Metric) plan() (field, reduction) {
	switch m {
	case MinForce:
		return fieldForce, reduceMin
	case MaxForce:
		return fieldForce, reduceMax
	case FinalForce:
		return fieldForce, reduceLast
	case MinAngle:
		return fieldAngle, reduceMin
	case MaxAngle:
		return fieldAngle, reduceMax
	case FinalAngle:
		return fieldAngle, reduceLast
	case StartTime:
		return fieldTime, reduceFirst
	case FinalTime:
		return fieldTime, reduceLast
	default:
		return fieldTime, reduceSpan
	}
}
