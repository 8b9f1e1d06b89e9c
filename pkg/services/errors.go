// Package services implements the workflow use cases on top of persistence,
// the component registry and the executors.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/agentflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidStatus        = errors.New("invalid workflow status")
	ErrInvalidWorkflow      = errors.New("invalid workflow")
	ErrInvalidNodeData      = errors.New("invalid node data")
	ErrUnknownComponent     = errors.New("unknown component")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrNodesRequired        = errors.New("workflow must have at least one node")
	ErrTriggerNodeRequired  = errors.New("workflow must have at least one trigger node")
	ErrConnectionRejected   = errors.New("connection rejected")

	// Not Found Errors (404).
	ErrWorkflowNotFound   = persistence.ErrWorkflowNotFound
	ErrNodeNotFound       = errors.New("node not found")
	ErrConnectionNotFound = errors.New("connection not found")

	// Business Logic Conflicts (409 Conflict).
	ErrSaveInProgress   = errors.New("save already in progress")
	ErrWorkflowArchived = errors.New("archived workflows are read-only")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidWorkflow) ||
		errors.Is(err, ErrInvalidNodeData) ||
		errors.Is(err, ErrUnknownComponent) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrTriggerNodeRequired) ||
		errors.Is(err, ErrConnectionRejected) ||
		errors.Is(err, persistence.ErrInvalidWorkflowStatus)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrComponentNotFound) ||
		errors.Is(err, ErrConnectionNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSaveInProgress) ||
		errors.Is(err, ErrWorkflowArchived) ||
		errors.Is(err, persistence.ErrWorkflowAlreadyExists) ||
		errors.Is(err, persistence.ErrConcurrentUpdate)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
