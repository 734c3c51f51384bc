package handler

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/otterscale/otterscale-tasks/internal/core"
)

// domainCodeToConnectCode maps domain-level error codes to their
// ConnectRPC equivalents.
var domainCodeToConnectCode = map[core.ErrorCode]connect.Code{
	core.ErrorCodeInternal:           connect.CodeInternal,
	core.ErrorCodeInvalidArgument:    connect.CodeInvalidArgument,
	core.ErrorCodeNotFound:           connect.CodeNotFound,
	core.ErrorCodeAlreadyExists:      connect.CodeAlreadyExists,
	core.ErrorCodeUnauthenticated:    connect.CodeUnauthenticated,
	core.ErrorCodePermissionDenied:   connect.CodePermissionDenied,
	core.ErrorCodeFailedPrecondition: connect.CodeFailedPrecondition,
	core.ErrorCodeDeadlineExceeded:   connect.CodeDeadlineExceeded,
	core.ErrorCodeResourceExhausted:  connect.CodeResourceExhausted,
	core.ErrorCodeUnimplemented:      connect.CodeUnimplemented,
	core.ErrorCodeUnavailable:        connect.CodeUnavailable,
}

// domainErrorToConnectError converts a domain error into a ConnectRPC
// error with a semantically equivalent code. Wait outcomes and other
// concrete domain error types are checked first, then DomainError
// codes are mapped. Unrecognised errors fall back to
// connect.CodeInternal.
func domainErrorToConnectError(err error) error {
	var (
		invalidInput  *core.ErrInvalidInput
		unknownAction *core.ErrUnknownAction
		waitTimeout   *core.ErrWaitTimeout
		cancelled     *core.ErrCancelled
		remote        *core.ErrRemote
		missing       *core.ErrMissingData
		endOfStream   *core.ErrUnexpectedEndOfStream
		transport     *core.ErrTransport
		domainErr     *core.DomainError
	)

	switch {
	case errors.As(err, &invalidInput):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &unknownAction):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.As(err, &waitTimeout):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.As(err, &cancelled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.As(err, &remote):
		return connect.NewError(connect.CodeAborted, err)
	case errors.As(err, &missing):
		return connect.NewError(connect.CodeDataLoss, err)
	case errors.As(err, &domainErr):
		code, ok := domainCodeToConnectCode[domainErr.Code]
		if !ok {
			code = connect.CodeInternal
		}
		return connect.NewError(code, err)
	case errors.As(err, &endOfStream), errors.As(err, &transport):
		return connect.NewError(connect.CodeUnavailable, err)
	}

	return connect.NewError(connect.CodeInternal, err)
}
