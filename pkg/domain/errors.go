package domain

import (
	"errors"
	"fmt"
)

// ErrExecutionNotFound is returned when an execution ID cannot be found in a store.
var ErrExecutionNotFound = errors.New("execution not found")

// ErrorCode classifies a workflow failure.
type ErrorCode string

const (
	CodeInvalidInputs     ErrorCode = "INVALID_INPUTS"
	CodeInvalidOutputs    ErrorCode = "INVALID_OUTPUTS"
	CodeInvalidWorkflow   ErrorCode = "INVALID_WORKFLOW"
	CodeNodeExecution     ErrorCode = "NODE_EXECUTION"
	CodeNodeCancelled     ErrorCode = "NODE_CANCELLED"
	CodeWorkflowCancelled ErrorCode = "WORKFLOW_CANCELLED"
	CodeWorkflowTimeout   ErrorCode = "WORKFLOW_TIMEOUT"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
	CodeProvider          ErrorCode = "PROVIDER_ERROR"
)

// GenericInternalMessage replaces the message of failures raised by runtime-owned code.
const GenericInternalMessage = "An unexpected error occurred while running the workflow"

// WorkflowError is the error type surfaced in rejected events and run results.
type WorkflowError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	cause   error
}

// NewError creates a WorkflowError with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *WorkflowError {
	return &WorkflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies err under code. The message is err's message.
func WrapError(code ErrorCode, err error) *WorkflowError {
	if err == nil {
		return nil
	}
	return &WorkflowError{Code: code, Message: err.Error(), cause: err}
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *WorkflowError) Unwrap() error { return e.cause }

// Is matches another WorkflowError with the same code, so callers can write
// errors.Is(err, &domain.WorkflowError{Code: domain.CodeInvalidInputs}).
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// AsWorkflowError extracts a WorkflowError from err's chain.
func AsWorkflowError(err error) (*WorkflowError, bool) {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal for unclassified errors.
func CodeOf(err error) ErrorCode {
	if we, ok := AsWorkflowError(err); ok {
		return we.Code
	}
	return CodeInternal
}
