// Package server provides the scorebook hosting server: routing, middleware and the /api proxy.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// Middleware must be added before handlers are registered; each handler is wrapped at registration.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Request Flow
//
// [New] wires, outermost first: [Recover], [RequestID], [Logging], [HTTPMetrics.Middleware],
// [SecurityHeaders], [CORS] and, when configured, [RateLimit] (tollbooth, per client IP).
//
// Routes:
//   - /api/ : [NewProxy], optionally behind [CatalogueCache] (redis)
//   - /api/media_files/ : [MediaHandler], served from disk so the proxy never loops back to itself
//   - / : [StaticHandler], the frontend build with an index.html fallback
//   - /metrics, /healthz
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
