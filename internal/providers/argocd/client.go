// Package argocd implements the core application repositories against
// the continuous-delivery controller's REST API.
package argocd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/otterscale/otterscale-tasks/internal/core"
)

// defaultRequestTimeout bounds every non-streaming call.
const defaultRequestTimeout = 30 * time.Second

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTokenSource configures the bearer token presented on every call.
func WithTokenSource(tokens core.TokenSource) ClientOption {
	return func(c *Client) { c.tokens = tokens }
}

// WithRequestTimeout overrides the timeout of non-streaming calls.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.requestTimeout = d }
}

// WithTLSConfig sets the TLS configuration used for every connection.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithClientLogger configures a structured logger. Defaults to
// slog.Default with a "component" attribute.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// Client is a thin JSON-over-HTTP client for the controller API.
type Client struct {
	baseURL        *url.URL
	tokens         core.TokenSource
	requestTimeout time.Duration
	tlsConfig      *tls.Config
	log            *slog.Logger

	http   *http.Client
	events metric.Int64Counter
}

// NewClient returns a Client for the controller at serverURL.
func NewClient(serverURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", serverURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &core.ErrInvalidInput{Field: "server_url", Message: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		baseURL:        u,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default().With("component", "argocd-client")
	}

	c.http = &http.Client{
		Transport: c.baseTransport(),
		Timeout:   c.requestTimeout,
	}

	events, err := otel.Meter("github.com/otterscale/otterscale-tasks/internal/providers/argocd").
		Int64Counter("tasks_watch_events_total", metric.WithDescription("Watch events decoded by event type"))
	if err != nil {
		return nil, err
	}
	c.events = events
	return c, nil
}

func (c *Client) baseTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if c.tlsConfig != nil {
		t.TLSClientConfig = c.tlsConfig.Clone()
	}
	return t
}

// newRequest builds an authenticated request against the API.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := *c.baseURL
	u.Path += path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do performs a non-streaming call and decodes the JSON answer into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
