package metrics

import "codeberg.org/meshalyzer/rigctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidChannel = errors.ErrInvalidChannel

	// Evaluation Errors
	ErrNoData        = errors.ErrorCode("metric_no_data")
	ErrUnknownMetric = errors.ErrorCode("metric_unknown")
)

func init() {
	errors.RegisterMessage(ErrNoData, "No trace rows recorded for step")
	errors.RegisterMessage(ErrUnknownMetric, "Unknown metric")
}
