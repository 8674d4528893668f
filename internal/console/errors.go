package console

import "codeberg.org/meshalyzer/rigctl/internal/errors"

const (
	ErrInvalidInterval errors.ErrorCode = "console_invalid_interval"
	ErrInputClosed     errors.ErrorCode = "console_input_closed"
)

func init() {
	errors.RegisterMessage(ErrInvalidInterval, "invalid console refresh interval")
	errors.RegisterMessage(ErrInputClosed, "operator input closed")
}
