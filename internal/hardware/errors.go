package hardware

import "codeberg.org/meshalyzer/rigctl/internal/errors"

const (
	// Acquisition Errors
	ErrReadFailed        = errors.ErrorCode("hardware_read_failed")
	ErrNoSample          = errors.ErrorCode("hardware_no_sample")
	ErrCalibrationFailed = errors.ErrorCode("calibration_failed")

	// Actuator Errors
	ErrValveFailed = errors.ErrorCode("hardware_valve_failed")

	// Network receiver Errors
	ErrListenFailed = errors.ErrorCode("hardware_listen_failed")
	ErrInvalidFrame = errors.ErrorCode("hardware_invalid_frame")
)

func init() {
	errors.RegisterMessage(ErrReadFailed, "Failed to read sensor")
	errors.RegisterMessage(ErrNoSample, "No sensor sample received yet")
	errors.RegisterMessage(ErrCalibrationFailed, "Calibration failed")
	errors.RegisterMessage(ErrValveFailed, "Failed to drive valve")
	errors.RegisterMessage(ErrListenFailed, "Failed to listen for sensor stream")
	errors.RegisterMessage(ErrInvalidFrame, "Invalid sensor frame")
}
