package persistence

import "codeberg.org/meshalyzer/rigctl/internal/errors"

const (
	ErrInvalidConfig      = errors.ErrInvalidConfig
	ErrWriteFailed        = errors.ErrorCode("persist_write_failed")
	ErrCopyFailed         = errors.ErrorCode("persist_copy_failed")
	ErrVerificationFailed = errors.ErrorCode("persist_verification_failed")
	ErrDirectoryExists    = errors.ErrorCode("persist_directory_exists")
	ErrNoFreeTrial        = errors.ErrorCode("persist_no_free_trial")
	ErrUnsavedLive        = errors.ErrorCode("persist_unsaved_live")
)

func init() {
	errors.RegisterMessage(ErrWriteFailed, "Failed to write run file")
	errors.RegisterMessage(ErrCopyFailed, "Failed to copy run file")
	errors.RegisterMessage(ErrVerificationFailed, "Copied file does not match the live file")
	errors.RegisterMessage(ErrDirectoryExists, "Run directory already exists")
	errors.RegisterMessage(ErrNoFreeTrial, "No free trial number for run directory")
	errors.RegisterMessage(ErrUnsavedLive, "Failed to preserve an unsaved live trace")
}
