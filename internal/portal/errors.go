package portal

import (
	"errors"
	"fmt"
)

// Code classifies dispatcher failures for transports and callers.
type Code string

const (
	// CodeUnavailable indicates a required collaborator (input method,
	// device-state source) is not currently active.
	CodeUnavailable Code = "UNAVAILABLE"

	// CodeNotFound indicates no active window, an unknown endpoint, or an
	// unknown tool.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidArgument indicates a parameter outside its allowed range.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeInvalidState indicates a collaborator is active but not in a
	// state that can serve the request (e.g. no live input connection).
	CodeInvalidState Code = "INVALID_STATE"

	// CodeTimeout indicates a bounded wait was exceeded.
	CodeTimeout Code = "TIMEOUT"

	// CodeInternal indicates an unexpected collaborator failure; the
	// underlying message is preserved.
	CodeInternal Code = "INTERNAL"

	// CodeProtocol indicates a malformed correlation-envelope message.
	CodeProtocol Code = "PROTOCOL_ERROR"
)

// OpError is the error type every dispatcher operation resolves into
// before wrapping. Transports never see anything else.
type OpError struct {
	Code Code
	Msg  string
	Err  error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *OpError) Unwrap() error { return e.Err }

// Is matches two OpErrors by code so callers can use errors.Is with a
// bare &OpError{Code: ...} sentinel.
func (e *OpError) Is(target error) bool {
	var other *OpError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func Unavailable(format string, args ...any) error {
	return &OpError{Code: CodeUnavailable, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &OpError{Code: CodeNotFound, Msg: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) error {
	return &OpError{Code: CodeInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) error {
	return &OpError{Code: CodeInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func Timeout(format string, args ...any) error {
	return &OpError{Code: CodeTimeout, Msg: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected collaborator failure, preserving its message.
func Internal(msg string, err error) error {
	return &OpError{Code: CodeInternal, Msg: msg, Err: err}
}

// CodeOf extracts the Code from an error, defaulting to CodeInternal for
// anything that is not an OpError.
func CodeOf(err error) Code {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return CodeInternal
}
