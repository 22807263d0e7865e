package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorBadGateway   ErrorCode = "bad_gateway"
	ErrorUnavailable  ErrorCode = "unavailable"
	ErrorInternal     ErrorCode = "internal"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }

func (e *ServiceError) Unwrap() error { return e.Err }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}
func NewBadGatewayError(msg string) error { return &ServiceError{Code: ErrorBadGateway, Message: msg} }
func NewUnavailableError(msg string) error {
	return &ServiceError{Code: ErrorUnavailable, Message: msg}
}

// NewInternalError keeps the cause so callers can still errors.Is against it.
func NewInternalError(msg string, err error) error {
	return &ServiceError{Code: ErrorInternal, Message: msg, Err: err}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

var (
	// ErrSessionNotFound is returned for unknown or expired survey sessions.
	ErrSessionNotFound = &ServiceError{Code: ErrorNotFound, Message: "session not found"}
	// ErrNameRequired blocks a submission without the child's name.
	ErrNameRequired = &ServiceError{Code: ErrorInvalid, Message: "child's name is required"}
	// ErrNoSubmission is returned when a report is requested before submitting.
	ErrNoSubmission = &ServiceError{Code: ErrorNotFound, Message: "no submission for this session"}
	// ErrAdvisorDisabled means no language model is configured.
	ErrAdvisorDisabled = &ServiceError{Code: ErrorUnavailable, Message: "AI assistant is not configured"}
)
