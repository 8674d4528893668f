package protocol

import "codeberg.org/meshalyzer/rigctl/internal/variables"

// PromptRequest asks the operator for a value. The interpreter blocks until
// a reply arrives on Reply. Error is set when the previous answer for the
// same step was rejected.
type PromptRequest struct {
	Title    string
	Variable string
	Kind     variables.Kind
	Error    string
	Reply    chan<- string
}
