package extraction

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when the backend lacks an endpoint or credential
	ErrNotConfigured = errors.New("extraction service is not configured")

	// ErrPollTimeout is returned when an operation does not finish within the wait budget
	ErrPollTimeout = errors.New("timed out waiting for analysis to complete")
)

// ServiceError is returned when the extraction service rejects a request
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("extraction service rejected request (status %d): %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("extraction service rejected request (status %d): %s", e.StatusCode, e.Message)
}

// TransportError is returned when the extraction service could not be reached
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// OperationFailedError is returned when the service reports a terminal failure for an operation
type OperationFailedError struct {
	Code    string
	Message string
}

func (e *OperationFailedError) Error() string {
	if e.Code == "" {
		return "analysis failed: " + e.Message
	}
	return fmt.Sprintf("analysis failed: %s: %s", e.Code, e.Message)
}
