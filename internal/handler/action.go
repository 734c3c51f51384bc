// Package handler exposes the task services over plain HTTP+JSON. Errors
// are written in the Connect unary error format so that clients see the
// same codes as the ops endpoints served alongside.
package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/otterscale/otterscale-tasks/internal/app"
	"github.com/otterscale/otterscale-tasks/internal/core"
	"github.com/otterscale/otterscale-tasks/internal/middleware"
)

// maxParamsBytes caps an action parameter object.
const maxParamsBytes = 1 << 20

// ActionHandler serves the action API.
type ActionHandler struct {
	tasks   *app.TaskService
	version *core.VersionUseCase
	binary  core.Version
	errors  *connect.ErrorWriter
	log     *slog.Logger
}

func NewActionHandler(tasks *app.TaskService, version *core.VersionUseCase, binary core.Version) *ActionHandler {
	return &ActionHandler{
		tasks:   tasks,
		version: version,
		binary:  binary,
		errors:  connect.NewErrorWriter(),
		log:     slog.Default().With("component", "action-handler"),
	}
}

// Mount registers the action routes on mux.
func (h *ActionHandler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/actions", h.listActions)
	mux.HandleFunc("POST /v1/actions/{action}", h.invokeAction)
	mux.HandleFunc("GET /v1/version", h.getVersion)
}

type listActionsResponse struct {
	Actions []string `json:"actions"`
}

func (h *ActionHandler) listActions(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, listActionsResponse{Actions: h.tasks.Actions()})
}

func (h *ActionHandler) invokeAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxParamsBytes))
	if err != nil {
		h.writeError(w, r, &core.ErrInvalidInput{Field: "params", Message: err.Error()})
		return
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && (trimmed[0] != '{' || !json.Valid(trimmed)) {
		h.writeError(w, r, &core.ErrInvalidInput{Field: "params", Message: "must be a JSON object"})
		return
	}

	if info, ok := middleware.UserInfoFrom(r.Context()); ok {
		h.log.Info("invoking action", "action", action, "caller", info)
	}

	inv, err := h.tasks.Invoke(r.Context(), action, body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}

type versionResponse struct {
	Version                  string `json:"version"`
	ControllerVersion        string `json:"controllerVersion,omitempty"`
	ControllerSupported      bool   `json:"controllerSupported"`
	MinimumControllerVersion string `json:"minimumControllerVersion"`
}

func (h *ActionHandler) getVersion(w http.ResponseWriter, r *http.Request) {
	cv, err := h.version.ControllerVersion(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, versionResponse{
		Version:                  string(h.binary),
		ControllerVersion:        cv.Raw,
		ControllerSupported:      cv.Supported,
		MinimumControllerVersion: core.MinControllerVersion,
	})
}

func (h *ActionHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("write response", "error", err)
	}
}

func (h *ActionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if werr := h.errors.Write(w, r, domainErrorToConnectError(err)); werr != nil {
		h.log.Warn("write error response", "error", werr)
	}
}
