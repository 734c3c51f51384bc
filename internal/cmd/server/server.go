// Package server implements the task server runtime that serves the
// action API together with health, reflection and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"connectrpc.com/authn"
	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"

	"github.com/otterscale/otterscale-tasks/internal/middleware"
	"github.com/otterscale/otterscale-tasks/internal/transport"
	"github.com/otterscale/otterscale-tasks/internal/transport/http"
)

// Config holds the runtime parameters for a Server.
type Config struct {
	Address        string
	AllowedOrigins []string
	OIDCIssuerURL  string
	OIDCClientID   string
	APIKey         string
}

// Server binds the HTTP server and the background listeners, running
// them in parallel via transport.Serve.
type Server struct {
	handler    *Handler
	background BackgroundListeners
}

func NewServer(handler *Handler, background BackgroundListeners) *Server {
	return &Server{handler: handler, background: background}
}

// Run starts the HTTP server and background listeners. It blocks until
// ctx is cancelled or an unrecoverable error occurs. Health,
// reflection and metrics endpoints are marked as public (no auth).
func (s *Server) Run(ctx context.Context, cfg Config) error {
	opts := []http.ServerOption{
		http.WithAddress(cfg.Address),
		http.WithAllowedOrigins(cfg.AllowedOrigins),
		http.WithPublicPaths([]string{"/metrics"}),
		http.WithPublicPrefixes([]string{
			"/" + grpchealth.HealthV1ServiceName + "/",
			"/" + grpcreflect.ReflectV1ServiceName + "/",
			"/" + grpcreflect.ReflectV1AlphaServiceName + "/",
		}),
		http.WithMount(s.handler.Mount),
	}

	auth, err := newAuthMiddleware(ctx, cfg)
	if err != nil {
		return err
	}
	if auth != nil {
		opts = append(opts, http.WithAuthMiddleware(auth))
	} else {
		slog.Warn("no OIDC issuer or API key configured; the action API is unauthenticated")
	}

	httpSrv, err := http.NewServer(opts...)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	listeners := make([]transport.Listener, 0, len(s.background)+1)
	listeners = append(listeners, httpSrv)
	listeners = append(listeners, s.background...)

	return transport.Serve(ctx, listeners...)
}

func newAuthMiddleware(ctx context.Context, cfg Config) (*authn.Middleware, error) {
	var verifiers []middleware.TokenVerifier

	if cfg.OIDCIssuerURL != "" {
		v, err := middleware.NewOIDCVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC verifier: %w", err)
		}
		verifiers = append(verifiers, v)
	}
	if cfg.APIKey != "" {
		verifiers = append(verifiers, middleware.NewAPIKeyVerifier(cfg.APIKey))
	}

	if len(verifiers) == 0 {
		return nil, nil
	}
	return middleware.NewAuth(verifiers...)
}
