package telemetry

import "codeberg.org/meshalyzer/rigctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidInterval = errors.ErrorCode("telemetry_invalid_interval")
	ErrInvalidCapacity = errors.ErrorCode("telemetry_invalid_capacity")

	// Collection Errors
	ErrMissingSource = errors.ErrorCode("telemetry_missing_source")
	ErrTickPanic     = errors.ErrorCode("telemetry_tick_panic")
)

func init() {
	errors.RegisterMessage(ErrInvalidInterval, "Acquisition interval out of range")
	errors.RegisterMessage(ErrInvalidCapacity, "Bridge capacity must be positive")
	errors.RegisterMessage(ErrMissingSource, "Acquisition source not configured")
	errors.RegisterMessage(ErrTickPanic, "Acquisition tick panicked")
}
