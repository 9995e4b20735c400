package a2a

import (
	"context"
	"errors"
	"fmt"
)

// JSON-RPC error codes. The -320xx range is A2A specific.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeTaskNotFound     = -32001
	CodeTaskNotResumable = -32002
	CodePushNotSupported = -32003
	CodeUnsupportedOp    = -32004
	CodeTaskBusy         = -32005
)

// JSONRPCError represents a standard JSON-RPC error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface for JSONRPCError
func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// NewJSONParseError is returned when the request body is not valid JSON.
func NewJSONParseError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeParseError, Message: "Invalid JSON payload", Data: data}
}

// NewInvalidRequestError is returned when the envelope itself is malformed.
func NewInvalidRequestError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInvalidRequest, Message: "Request payload validation error", Data: data}
}

// NewMethodNotFoundError is returned for methods the dispatcher does not serve.
func NewMethodNotFoundError(method string) *JSONRPCError {
	return &JSONRPCError{Code: CodeMethodNotFound, Message: "Method not found", Data: method}
}

// NewInvalidParamsError is returned when params do not decode or validate.
func NewInvalidParamsError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInvalidParams, Message: "Invalid parameters", Data: data}
}

// NewInternalError wraps an unexpected server failure.
func NewInternalError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInternalError, Message: "Internal error", Data: data}
}

// NewTaskNotFoundError indicates the requested task ID was not found.
func NewTaskNotFoundError(taskID string) *JSONRPCError {
	return &JSONRPCError{Code: CodeTaskNotFound, Message: "Task not found", Data: taskID}
}

// NewTaskNotResumableError indicates the task is terminal, or not in a state
// that accepts the request.
func NewTaskNotResumableError(taskID string, state TaskState) *JSONRPCError {
	return &JSONRPCError{
		Code:    CodeTaskNotResumable,
		Message: "Task cannot be resumed or canceled",
		Data:    map[string]any{"taskId": taskID, "state": state},
	}
}

// NewTaskBusyError indicates a turn is already running for the task.
func NewTaskBusyError(taskID string) *JSONRPCError {
	return &JSONRPCError{Code: CodeTaskBusy, Message: "Task is busy", Data: taskID}
}

// CardUnavailableError is returned when an agent card cannot be fetched or
// does not validate.
type CardUnavailableError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *CardUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent card unavailable at %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("agent card unavailable at %s: %v", e.URL, e.Err)
}

func (e *CardUnavailableError) Unwrap() error {
	return e.Err
}

// TransportError is a network level failure talking to a remote agent.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a deadline.
func (e *TransportError) Timeout() bool {
	var te interface{ Timeout() bool }
	if errors.As(e.Err, &te) && te.Timeout() {
		return true
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ProtocolError means a response arrived but did not match the expected
// envelope. When the remote returned a JSON-RPC error object it is kept in
// RemoteError.
type ProtocolError struct {
	Reason      string
	RemoteError *JSONRPCError
}

func (e *ProtocolError) Error() string {
	if e.RemoteError != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.RemoteError)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	if e.RemoteError != nil {
		return e.RemoteError
	}
	return nil
}
