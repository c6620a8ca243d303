// Package errors provides contextual errors for the pvfit tooling.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies an error so callers can react without string matching.
type Kind string

const (
	// KindUnknown is the zero Kind.
	KindUnknown Kind = ""
	// KindConfig marks invalid configuration (bounds, parameters, settings).
	KindConfig Kind = "config"
	// KindInvalidInput marks malformed user input such as a bad data file.
	KindInvalidInput Kind = "invalid_input"
	// KindNotFound marks a missing resource (sheet, column, job).
	KindNotFound Kind = "not_found"
	// KindIO marks a failure reading or writing external storage.
	KindIO Kind = "io"
	// KindUnavailable marks a service that is shutting down.
	KindUnavailable Kind = "unavailable"
)

// Error represents an error with context and stack trace.
type Error struct {
	// Kind classifies the error.
	Kind Kind
	// Err is the underlying error, if any.
	Err error
	// Message is a human-readable description.
	Message string
	// Operation is the operation being performed when the error occurred.
	Operation string
	// Component is the package or subsystem where the error occurred.
	Component string
	// Param names the offending parameter for configuration errors.
	Param string
	// Stack is the captured call stack.
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	if e.Component != "" {
		b.WriteString(e.Component)
		if e.Operation != "" {
			b.WriteString(".")
			b.WriteString(e.Operation)
		}
		b.WriteString(": ")
	} else if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}

	if e.Kind != KindUnknown {
		b.WriteString(string(e.Kind))
		if e.Param != "" {
			b.WriteString(" (")
			b.WriteString(e.Param)
			b.WriteString(")")
		}
		if e.Message != "" || e.Err != nil {
			b.WriteString(": ")
		}
	}

	b.WriteString(e.Message)

	if e.Err != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same non-empty Kind, so a bare &Error{Kind: k}
// can be used as a target with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != KindUnknown && t.Kind == e.Kind && t.Message == "" && t.Err == nil
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

// WithParam records the offending parameter.
func (e *Error) WithParam(param string) *Error {
	e.Param = param
	return e
}

// StackTrace returns the stack trace as a slice of strings.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New creates a new error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{
		Kind:    kind,
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Errorf creates a new error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Stack:   getStackTrace(),
	}
}

// Wrap wraps err with a kind and message. It returns nil when err is nil.
func Wrap(err error, kind Kind, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Err:     err,
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Wrapf wraps err with a kind and formatted message.
func Wrapf(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, kind, fmt.Sprintf(format, args...))
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// getStackTrace returns the current stack trace as a slice of strings.
func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // skip runtime.Callers, getStackTrace and the constructor
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
