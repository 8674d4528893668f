package metrics

import (
	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/telemetry"
)

type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg}, nil
}

// Compute reduces the rows recorded for step. It returns ErrNoData when
// the step has no rows.
func (e *Evaluator) Compute(m Metric, rows []telemetry.Snapshot, step uint32) (float64, error) {
	errFactory := errors.New()

	if m < 0 || int(m) >= len(metricNames) {
		return 0, errFactory.WithData(ErrUnknownMetric, int(m))
	}

	f, r := m.plan()

	var (
		first, last, acc float64
		n                int
	)
	for i := range rows {
		if rows[i].Step != step {
			continue
		}
		v := e.value(&rows[i], f)
		if n == 0 {
			first, acc = v, v
		}
		switch r {
		case reduceMin:
			acc = min(acc, v)
		case reduceMax:
			acc = max(acc, v)
		}
		last = v
		n++
	}

	if n == 0 {
		return 0, errFactory.WithData(ErrNoData, struct {
			Metric string
			Step   uint32
		}{m.String(), step})
	}

	switch r {
	case reduceFirst:
		return first, nil
	case reduceLast:
		return last, nil
	case reduceSpan:
		return last - first, nil
	default:
		return acc, nil
	}
}

func (e *Evaluator) value(s *telemetry.Snapshot, f field) float64 {
	switch f {
	case fieldForce:
		return s.Calibrated[e.cfg.ForceChannel]
	case fieldAngle:
		return s.Calibrated[e.cfg.AngleChannel]
	default:
		return s.Elapsed
	}
}
