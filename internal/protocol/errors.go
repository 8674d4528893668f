package protocol

import "codeberg.org/meshalyzer/rigctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidChannel  = errors.ErrInvalidChannel
	ErrInvalidInterval = errors.ErrInvalidInterval
	ErrInvalidTimeout  = errors.ErrorCode("protocol_invalid_timeout")

	// Parse Errors
	ErrParse    = errors.ErrorCode("protocol_parse_failed")
	ErrReadFile = errors.ErrorCode("protocol_read_failed")

	// Run Errors
	ErrReentrancy       = errors.ErrorCode("protocol_reentrancy")
	ErrCanceled         = errors.ErrCanceled
	ErrActuationTimeout = errors.ErrorCode("actuation_timeout")
	ErrActuationFailed  = errors.ErrorCode("actuation_failed")
	ErrBindFailed       = errors.ErrorCode("protocol_bind_failed")
)

func init() {
	errors.RegisterMessage(ErrInvalidTimeout, "Actuation timeout must not be negative")
	errors.RegisterMessage(ErrParse, "Invalid protocol")
	errors.RegisterMessage(ErrReadFile, "Failed to read protocol file")
	errors.RegisterMessage(ErrReentrancy, "A protocol is already running")
	errors.RegisterMessage(ErrActuationTimeout, "Pressure target not reached in time")
	errors.RegisterMessage(ErrActuationFailed, "Valve command failed")
	errors.RegisterMessage(ErrBindFailed, "Failed to store variable")
}
