// package server contains the router, middleware & handlers of the scorebook hosting server
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/desertthunder/scorebook/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the hosting server.
// Implementations handle specific path prefixes (proxy, media files, static frontend).
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Options configures [New].
type Options struct {
	Upstream       string        // API origin, e.g. http://127.0.0.1:5000; required
	StaticDir      string        // frontend build served at /, optional
	MediaDir       string        // served at /api/media_files/; without it that prefix is 404, never proxied
	AllowedOrigins []string      // CORS origins; empty or "*" allows any
	RateLimit      float64       // requests per second per client IP, 0 disables
	TrustProxy     bool          // key the rate limit on X-Forwarded-For / X-Real-IP
	Cache          ResponseCache // anonymous catalogue cache, optional
	CacheTTL       time.Duration
	Registry       *prometheus.Registry // metrics registry, a new one when nil
	Logger         *log.Logger
}

// Server is the hosting server: a reverse proxy for /api, local media files and the static frontend.
type Server struct {
	router   *BasicRouter
	upstream *url.URL
	logger   *log.Logger
}

// New builds the router from opts.
func New(opts Options) (*Server, error) {
	upstream, err := parseUpstream(opts.Upstream)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	metrics := NewHTTPMetrics(opts.Registry)

	r := NewBasicRouter()
	r.Use(
		Recover(opts.Logger),
		RequestID(),
		Logging(opts.Logger),
		metrics.Middleware(),
		SecurityHeaders(upstream),
		CORS(CORSOptions{AllowedOrigins: opts.AllowedOrigins}),
	)
	if opts.RateLimit > 0 {
		r.Use(RateLimit(opts.RateLimit, opts.TrustProxy))
	}

	var api http.Handler = NewProxy(upstream, opts.Logger)
	if opts.Cache != nil {
		api = CatalogueCache(opts.Cache, opts.CacheTTL, opts.Logger)(api)
	}
	r.Handler(routed{Handler: api, routes: []string{"/api/"}})

	r.Handler(NewMediaHandler(opts.MediaDir))
	if opts.StaticDir != "" {
		r.Handler(NewStaticHandler(opts.StaticDir))
	}

	r.Handle(http.MethodGet, "/metrics", metrics.Handler())
	r.Handle(http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	}))

	return &Server{router: r, upstream: upstream, logger: opts.Logger}, nil
}

func parseUpstream(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: upstream is required", shared.ErrInvalidConfig)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: upstream %q must be an http(s) origin", shared.ErrInvalidConfig, raw)
	}
	return u, nil
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("hosting server listening", "addr", addr, "upstream", s.upstream.String(),
			"routes", s.router.Patterns())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("shutting down hosting server")
	return srv.Shutdown(shutdownCtx)
}

// routed attaches routes to a plain handler.
type routed struct {
	http.Handler
	routes []string
}

func (r routed) Routes() []string { return r.routes }
