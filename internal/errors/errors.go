// Package errors classifies failures for the warpbench service and maps
// them to HTTP statuses and JSON-RPC error codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/copyleftdev/warpbench/internal/optimization"
)

// JSON-RPC 2.0 error codes. Codes above -32099 are application defined.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeNotFound       = -32001
	CodeExhausted      = -32002
	CodeConflict       = -32003
)

// Error represents an error with context, a response classification and,
// for internal failures, a stack trace.
type Error struct {
	// The underlying error that was returned
	Err error
	// A human-readable message describing the error
	Message string
	// The operation that was being performed when the error occurred
	Operation string
	// The component or package where the error occurred
	Component string
	// Status is the HTTP status reported for the error
	Status int
	// Code is the JSON-RPC error code reported for the error
	Code int
	// The stack trace
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	if e.Message != "" {
		builder.WriteString(e.Message)
	}

	if e.Operation != "" {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString("operation=")
		builder.WriteString(e.Operation)
	}

	if e.Component != "" {
		if builder.Len() > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString("component=")
		builder.WriteString(e.Component)
	}

	if e.Err != nil {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Public returns the message safe to send to a client. Internal failures
// are reported by status text only.
func (e *Error) Public() string {
	if e.Status >= http.StatusInternalServerError {
		return http.StatusText(e.Status)
	}
	return e.Error()
}

// WithOperation adds an operation to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent adds a component to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// StackTrace returns the stack trace as a slice of strings.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New creates an internal error with a message.
func New(msg string) *Error {
	return &Error{
		Message: msg,
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Stack:   getStackTrace(),
	}
}

// Errorf creates an internal error with a formatted message.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Stack:   getStackTrace(),
	}
}

// BadRequestf creates a 400 error for malformed client input.
func BadRequestf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidParams,
	}
}

// NotFoundf creates a 404 error for an unknown resource.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
	}
}

// Conflictf creates a 409 error for a request that clashes with the
// current state of the service.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Status:  http.StatusConflict,
		Code:    CodeConflict,
	}
}

// Protocol creates an error carrying a JSON-RPC protocol code.
func Protocol(code int, msg string) *Error {
	return &Error{
		Message: msg,
		Status:  http.StatusBadRequest,
		Code:    code,
	}
}

// Wrap wraps an error with additional context, classifying it with
// FromError. A nil err yields nil.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	base := FromError(err)
	return &Error{
		Err:     err,
		Message: msg,
		Status:  base.Status,
		Code:    base.Code,
		Stack:   base.Stack,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// FromError classifies err. An *Error in the chain is returned as is;
// optimizer errors map by kind: validation and configuration to 400,
// sampling exhaustion to 409. Anything else is an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}

	switch optimization.KindOf(err) {
	case optimization.KindValidation, optimization.KindConfiguration:
		return &Error{Err: err, Status: http.StatusBadRequest, Code: CodeInvalidParams}
	case optimization.KindSamplingExhausted:
		return &Error{Err: err, Status: http.StatusConflict, Code: CodeExhausted}
	default:
		return &Error{
			Err:    err,
			Status: http.StatusInternalServerError,
			Code:   CodeInternal,
			Stack:  getStackTrace(),
		}
	}
}

// StatusCode returns the HTTP status for err, 200 for nil.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).Status
}

// getStackTrace returns the current stack trace as a slice of strings.
func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, getStackTrace, and the constructor
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/errors") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}

	return stack
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if any.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}
