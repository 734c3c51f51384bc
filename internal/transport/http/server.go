// Package http serves the task API over HTTP/1.1 and cleartext HTTP/2,
// wrapped in access logging, CORS and bearer authentication.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/authn"
	connectcors "connectrpc.com/cors"
	"github.com/rs/cors"
)

// MountFunc registers routes on the server's mux.
type MountFunc func(mux *http.ServeMux) error

// ServerOption configures a Server.
type ServerOption func(*Server)

// Server implements transport.Listener.
type Server struct {
	address string
	ln      net.Listener
	mount   MountFunc
	auth    *authn.Middleware
	public  publicRoutes
	origins []string
	log     *slog.Logger

	srv *http.Server
}

// WithAddress sets the TCP listen address. Ignored with WithListener.
func WithAddress(address string) ServerOption {
	return func(s *Server) { s.address = address }
}

// WithListener serves on ln instead of listening on the address.
func WithListener(ln net.Listener) ServerOption {
	return func(s *Server) { s.ln = ln }
}

func WithMount(mount MountFunc) ServerOption {
	return func(s *Server) { s.mount = mount }
}

// WithAuthMiddleware protects every route that is not public.
func WithAuthMiddleware(m *authn.Middleware) ServerOption {
	return func(s *Server) { s.auth = m }
}

// WithPublicPaths exempts exact paths from authentication.
func WithPublicPaths(paths []string) ServerOption {
	return func(s *Server) { s.public.addPaths(paths) }
}

// WithPublicPrefixes exempts every path under the given prefixes,
// e.g. a whole Connect service.
func WithPublicPrefixes(prefixes []string) ServerOption {
	return func(s *Server) { s.public.addPrefixes(prefixes) }
}

// WithAllowedOrigins restricts CORS to origins. Without it any origin
// is accepted, which is only allowed when authentication is off.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

// NewServer binds the listener and builds the handler chain. Routes
// are mounted once, here.
func NewServer(opts ...ServerOption) (*Server, error) {
	s := &Server{
		address: ":8299",
		log:     slog.Default().With("component", "http-server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.auth != nil && len(s.origins) == 0 {
		return nil, errors.New("http server: authentication requires explicit allowed origins; " +
			"set --allowed-origins or OTTERSCALE_TASKS_SERVER_ALLOWED_ORIGINS")
	}

	mux := http.NewServeMux()
	if s.mount != nil {
		if err := s.mount(mux); err != nil {
			return nil, fmt.Errorf("mount routes: %w", err)
		}
	}

	if s.ln == nil {
		ln, err := net.Listen("tcp", s.address)
		if err != nil {
			return nil, fmt.Errorf("http listen %q: %w", s.address, err)
		}
		s.ln = ln
	}

	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	// No WriteTimeout: argocd.wait responses legitimately take as long
	// as the reconciliation does.
	s.srv = &http.Server{
		Handler:           s.logRequests(s.withCORS(s.withAuth(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Minute,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    8 << 10,
		Protocols:         protocols,
	}
	return s, nil
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Stop is called. Request contexts derive from ctx.
func (s *Server) Start(ctx context.Context) error {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	s.log.Info("listening",
		"address", s.ln.Addr().String(),
		"auth", s.auth != nil,
		"allowed_origins", s.origins,
	)

	err := s.srv.Serve(s.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("http serve: %w", err)
}

// Stop drains in-flight requests, closing them outright once ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down")
	err := s.srv.Shutdown(ctx)
	if err == nil {
		return nil
	}
	s.log.Error("graceful shutdown failed, closing", "error", err)
	return s.srv.Close()
}

func (s *Server) withAuth(mux *http.ServeMux) http.Handler {
	if s.auth == nil {
		return mux
	}
	protected := s.auth.Wrap(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.public.match(r.URL.Path) {
			mux.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	if len(s.origins) == 0 {
		return cors.AllowAll().Handler(next)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   connectcors.AllowedMethods(),
		AllowedHeaders:   connectcors.AllowedHeaders(),
		ExposedHeaders:   connectcors.ExposedHeaders(),
		AllowCredentials: true,
		MaxAge:           7200,
	}).Handler(next)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// publicRoutes is the set of paths served without authentication.
type publicRoutes struct {
	paths    map[string]struct{}
	prefixes []string
}

func (p *publicRoutes) addPaths(paths []string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if p.paths == nil {
			p.paths = make(map[string]struct{})
		}
		p.paths[rooted(path)] = struct{}{}
	}
}

func (p *publicRoutes) addPrefixes(prefixes []string) {
	for _, prefix := range prefixes {
		if prefix != "" {
			p.prefixes = append(p.prefixes, rooted(prefix))
		}
	}
}

func (p *publicRoutes) match(path string) bool {
	if _, ok := p.paths[path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func rooted(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
