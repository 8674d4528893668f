package variables

import "codeberg.org/meshalyzer/rigctl/internal/errors"

const (
	// Resolution Errors
	ErrNotFound            = errors.ErrorCode("variable_not_found")
	ErrTooManyIndirections = errors.ErrorCode("too_many_indirections")
	ErrTypeMismatch        = errors.ErrorCode("type_mismatch")
	ErrInvalidExpression   = errors.ErrorCode("invalid_expression")

	// Store Errors
	ErrInvalidName = errors.ErrorCode("variable_invalid_name")
	ErrInvalidKind = errors.ErrorCode("variable_invalid_kind")
	ErrLogWrite    = errors.ErrorCode("variable_log_write_failed")
)

func init() {
	errors.RegisterMessage(ErrNotFound, "Variable not found")
	errors.RegisterMessage(ErrTooManyIndirections, "Too many variable indirections")
	errors.RegisterMessage(ErrTypeMismatch, "Value has the wrong type")
	errors.RegisterMessage(ErrInvalidExpression, "Invalid expression")
	errors.RegisterMessage(ErrInvalidName, "Invalid variable name")
	errors.RegisterMessage(ErrInvalidKind, "Unknown value type")
	errors.RegisterMessage(ErrLogWrite, "Failed to write variables log")
}
