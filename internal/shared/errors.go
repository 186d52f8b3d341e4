package shared

import "errors"

var (
	// ErrNotFound indicates the requested aggregate does not exist.
	ErrNotFound = errors.New("not found")
	// ErrReferenceNotFound indicates a referenced client/event/provider/employee does not exist.
	ErrReferenceNotFound = errors.New("referenced entity not found")
	// ErrInvalidTransition indicates a state machine violation.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTerminalState indicates an edit attempt on a paid/cancelled/finalised aggregate.
	ErrTerminalState = errors.New("aggregate is in a terminal state")
	// ErrValidation indicates malformed input rejected before any persistence.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the acting user may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)
