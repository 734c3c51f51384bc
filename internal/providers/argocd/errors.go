package argocd

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/otterscale/otterscale-tasks/internal/core"
)

// statusToDomainCode maps HTTP status codes returned by the
// controller to domain-level error codes. This keeps the HTTP mapping
// inside the adapter layer.
var statusToDomainCode = map[int]core.ErrorCode{
	http.StatusBadRequest:            core.ErrorCodeInvalidArgument,
	http.StatusUnauthorized:          core.ErrorCodeUnauthenticated,
	http.StatusForbidden:             core.ErrorCodePermissionDenied,
	http.StatusNotFound:              core.ErrorCodeNotFound,
	http.StatusConflict:              core.ErrorCodeAlreadyExists,
	http.StatusPreconditionFailed:    core.ErrorCodeFailedPrecondition,
	http.StatusRequestTimeout:        core.ErrorCodeDeadlineExceeded,
	http.StatusGatewayTimeout:        core.ErrorCodeDeadlineExceeded,
	http.StatusTooManyRequests:       core.ErrorCodeResourceExhausted,
	http.StatusRequestEntityTooLarge: core.ErrorCodeResourceExhausted,
	http.StatusNotImplemented:        core.ErrorCodeUnimplemented,
	http.StatusServiceUnavailable:    core.ErrorCodeUnavailable,
	http.StatusBadGateway:            core.ErrorCodeUnavailable,
	http.StatusInternalServerError:   core.ErrorCodeInternal,
}

// errorBody is the gateway error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 * 1024

// decodeError converts a non-2xx response into a core.DomainError.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	code, ok := statusToDomainCode[resp.StatusCode]
	if !ok {
		code = core.ErrorCodeInternal
	}

	msg := strings.TrimSpace(string(data))
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.Message != "":
			msg = body.Message
		case body.Error != "":
			msg = body.Error
		}
	}
	if msg == "" {
		msg = resp.Status
	}

	return &core.DomainError{Code: code, Message: msg}
}
