package extraction

import "context"

// State is the lifecycle state of an analyze operation
type State string

const (
	StateNotStarted State = "notStarted"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Operation is an opaque handle to a submitted analysis
type Operation struct {
	ID       string
	Location string
}

// OperationError is the failure reported by the service for a failed operation
type OperationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OperationStatus is a single observation of an operation
type OperationStatus struct {
	State  State
	Result *AnalysisResult
	Error  *OperationError
}

// Backend defines the interface for long-running document extraction services
type Backend interface {
	// Submit sends a document for analysis and returns the operation handle
	Submit(ctx context.Context, data []byte, contentType string) (*Operation, error)
	// Status reports the current state of an operation
	Status(ctx context.Context, op *Operation) (*OperationStatus, error)
	// Close releases resources held by the backend
	Close() error
}

// Releaser is implemented by backends that hold per-operation state.
// Release is called once the caller stops waiting on op.
type Releaser interface {
	Release(op *Operation)
}
