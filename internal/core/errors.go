package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies a failure reported by the remote controller's
// HTTP API independently of the transport that carried it.
type ErrorCode string

const (
	ErrorCodeInvalidArgument    ErrorCode = "invalid_argument"
	ErrorCodeUnauthenticated    ErrorCode = "unauthenticated"
	ErrorCodePermissionDenied   ErrorCode = "permission_denied"
	ErrorCodeNotFound           ErrorCode = "not_found"
	ErrorCodeAlreadyExists      ErrorCode = "already_exists"
	ErrorCodeFailedPrecondition ErrorCode = "failed_precondition"
	ErrorCodeResourceExhausted  ErrorCode = "resource_exhausted"
	ErrorCodeDeadlineExceeded   ErrorCode = "deadline_exceeded"
	ErrorCodeUnimplemented      ErrorCode = "unimplemented"
	ErrorCodeUnavailable        ErrorCode = "unavailable"
	ErrorCodeInternal           ErrorCode = "internal"
)

// DomainError is a non-2xx answer from the remote controller, mapped
// to an ErrorCode by the adapter layer.
type DomainError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// ErrInvalidInput indicates a domain-level input validation failure.
type ErrInvalidInput struct {
	Field   string
	Message string
}

func (e *ErrInvalidInput) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ErrTransport is a connection or IO failure that is neither a wait
// timeout nor a caller cancellation.
type ErrTransport struct {
	Op    string
	Cause error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *ErrTransport) Unwrap() error {
	return e.Cause
}

// ErrWaitTimeout indicates the read timeout elapsed before the
// application satisfied the termination policy.
type ErrWaitTimeout struct {
	Application string
	Timeout     time.Duration
	Cause       error
}

func (e *ErrWaitTimeout) Error() string {
	return fmt.Sprintf("timed out after %s waiting for application %s", e.Timeout, e.Application)
}

func (e *ErrWaitTimeout) Unwrap() error {
	return e.Cause
}

// ErrRemote carries the message of an explicit error event sent by
// the controller on the watch stream.
type ErrRemote struct {
	Message string
}

func (e *ErrRemote) Error() string {
	return e.Message
}

// ErrMissingData indicates a watch event carried neither an error nor
// an application snapshot.
type ErrMissingData struct {
	Reason string
	Cause  error
}

func (e *ErrMissingData) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("watch event missing data: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("watch event missing data: %s", e.Reason)
}

func (e *ErrMissingData) Unwrap() error {
	return e.Cause
}

// ErrUnexpectedEndOfStream indicates the watch stream closed cleanly
// before the termination policy was satisfied.
type ErrUnexpectedEndOfStream struct {
	Application string
}

func (e *ErrUnexpectedEndOfStream) Error() string {
	return fmt.Sprintf("watch stream for application %s ended before it was reconciled", e.Application)
}

// ErrCancelled indicates the caller cancelled the wait.
type ErrCancelled struct {
	Application string
	Cause       error
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("wait for application %s cancelled", e.Application)
}

func (e *ErrCancelled) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err is a transport-level timeout.
func IsTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
