package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrValidationError   = "VALIDATION_ERROR"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrInternalError     = "INTERNAL_ERROR"
)

// Simulation-specific error codes.
const (
	// ErrRemote covers any transport or processing failure from the
	// rendering service.
	ErrRemote = "REMOTE_ERROR"
	// ErrNoImageReturned means the rendering service answered successfully
	// but produced no image part. Distinct from ErrRemote so the frontend
	// can present it as a retryable "output unusable" condition.
	ErrNoImageReturned = "NO_IMAGE_RETURNED"
	// ErrSessionLocked rejects back/reset/simulate while a run is in flight.
	ErrSessionLocked = "SESSION_LOCKED"
)

// ErrorEnvelope is the standard error response envelope returned by the API.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error for a step
// change the state machine does not allow.
func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidTransition, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewRemoteError wraps a rendering service failure.
func NewRemoteError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrRemote, Message: msg}
}

// NewNoImageReturnedError reports a successful render call with no usable
// image in the response.
func NewNoImageReturnedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNoImageReturned, Message: msg}
}

// NewSessionLockedError rejects an action because a simulation run is still
// in flight for the session.
func NewSessionLockedError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionLocked,
		Message: "A simulation run is in progress; wait for it to finish",
	}
}
