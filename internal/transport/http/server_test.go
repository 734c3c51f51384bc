package http

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/authn"
)

func testListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestNewServer_PublicPathsBypassAuth(t *testing.T) {
	t.Parallel()

	authMiddleware := authn.NewMiddleware(func(_ context.Context, r *http.Request) (any, error) {
		if r.Header.Get("Authorization") == "" {
			return nil, authn.Errorf("missing bearer token")
		}
		return struct{}{}, nil
	})

	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

	srv, err := NewServer(
		WithListener(testListener(t)),
		WithAllowedOrigins([]string{"https://console.example.com"}),
		WithAuthMiddleware(authMiddleware),
		WithPublicPaths([]string{"/public", "metrics"}),
		WithPublicPrefixes([]string{"/grpc.health.v1.Health/"}),
		WithMount(func(mux *http.ServeMux) error {
			mux.HandleFunc("/public", ok)
			mux.HandleFunc("/metrics", ok)
			mux.HandleFunc("/grpc.health.v1.Health/Check", ok)
			mux.HandleFunc("/private", ok)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	tests := []struct {
		name   string
		path   string
		token  string
		wantOK bool
	}{
		{"public path without token is allowed", "/public", "", true},
		{"normalised public path without token is allowed", "/metrics", "", true},
		{"public prefix without token is allowed", "/grpc.health.v1.Health/Check", "", true},
		{"private path without token is blocked", "/private", "", false},
		{"private path with token is allowed", "/private", "test-token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if gotOK := rec.Code == http.StatusOK; gotOK != tt.wantOK {
				t.Fatalf("status %d, want ok=%v", rec.Code, tt.wantOK)
			}
		})
	}
}

func TestNewServer_AuthRequiresOrigins(t *testing.T) {
	t.Parallel()

	mw := authn.NewMiddleware(func(context.Context, *http.Request) (any, error) { return nil, nil })
	if _, err := NewServer(WithListener(testListener(t)), WithAuthMiddleware(mw)); err == nil {
		t.Fatal("expected error when auth is enabled without allowed origins")
	}
}

func TestNewServer_CORSPreflight(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(
		WithListener(testListener(t)),
		WithAllowedOrigins([]string{"https://console.example.com"}),
		WithMount(func(mux *http.ServeMux) error {
			mux.HandleFunc("/v1/actions", func(w http.ResponseWriter, _ *http.Request) {})
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"https://console.example.com", "https://console.example.com"},
		{"https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/v1/actions", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}
