package argocd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/otterscale/otterscale-tasks/internal/core"
)

// ApplicationRepo implements core.ApplicationRepo and
// core.ServerInfoRepo over the controller REST API.
type ApplicationRepo struct {
	client *Client
}

func NewApplicationRepo(client *Client) *ApplicationRepo {
	return &ApplicationRepo{client: client}
}

var (
	_ core.ApplicationRepo = (*ApplicationRepo)(nil)
	_ core.ServerInfoRepo  = (*ApplicationRepo)(nil)
)

func applicationPath(name string) string {
	return "/api/v1/applications/" + url.PathEscape(name)
}

func (r *ApplicationRepo) Get(ctx context.Context, name string, refresh bool) (*core.Application, error) {
	var query url.Values
	if refresh {
		query = url.Values{"refresh": {"true"}}
	}

	var app core.Application
	if err := r.client.do(ctx, http.MethodGet, applicationPath(name), query, nil, &app); err != nil {
		return nil, wrapTransport("get application "+name, err)
	}
	return &app, nil
}

// patchRequest is the body of the application patch endpoint, which
// takes the patch document as an embedded string.
type patchRequest struct {
	Name      string `json:"name"`
	Patch     string `json:"patch"`
	PatchType string `json:"patchType"`
}

func (r *ApplicationRepo) Patch(ctx context.Context, name string, patch []core.JSONPatchOperation) (*core.Application, error) {
	doc, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode patch for %s: %w", name, err)
	}

	body := patchRequest{Name: name, Patch: string(doc), PatchType: "json"}

	var app core.Application
	if err := r.client.do(ctx, http.MethodPatch, applicationPath(name), nil, body, &app); err != nil {
		return nil, wrapTransport("patch application "+name, err)
	}
	return &app, nil
}

func (r *ApplicationRepo) Sync(ctx context.Context, name string, req *core.SyncRequest) (*core.Application, error) {
	var app core.Application
	if err := r.client.do(ctx, http.MethodPost, applicationPath(name)+"/sync", nil, req, &app); err != nil {
		return nil, wrapTransport("sync application "+name, err)
	}
	return &app, nil
}

// Watch opens the application event stream. The connection is
// dedicated to this watch and its idle read timeout is timeout.
func (r *ApplicationRepo) Watch(ctx context.Context, name, resourceVersion string, timeout time.Duration) (core.ApplicationStream, error) {
	query := url.Values{"name": {name}}
	if resourceVersion != "" {
		query.Set("resourceVersion", resourceVersion)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := r.client.newRequest(streamCtx, http.MethodGet, "/api/v1/stream/applications", query, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	transport := r.client.watchTransport(timeout)
	hc := &http.Client{Transport: transport}

	resp, err := hc.Do(req)
	if err != nil {
		cancel()
		transport.CloseIdleConnections()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() {
			resp.Body.Close()
			cancel()
			transport.CloseIdleConnections()
		}()
		return nil, decodeError(resp)
	}

	r.client.log.Debug("watch opened", "application", name, "resource_version", resourceVersion, "timeout", timeout)
	return newStream(resp.Body, cancel, transport, r.client.events), nil
}

type versionResponse struct {
	Version string `json:"Version"`
}

func (r *ApplicationRepo) ServerVersion(ctx context.Context) (string, error) {
	var v versionResponse
	if err := r.client.do(ctx, http.MethodGet, "/api/version", nil, nil, &v); err != nil {
		return "", wrapTransport("get server version", err)
	}
	return v.Version, nil
}

// wrapTransport leaves domain errors untouched and wraps everything
// else as a transport failure.
func wrapTransport(op string, err error) error {
	if _, ok := err.(*core.DomainError); ok {
		return err
	}
	return &core.ErrTransport{Op: op, Cause: err}
}
