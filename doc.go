// Package veloxauth provides the authentication security core used by the
// Velox framework: issuance, validation, and revocation of signed session
// tokens; brute-force mitigation via fixed-window rate limiting with
// progressive lockout; and CSRF protection via a signed double-submit
// token.
//
// The package is designed for concurrent server workloads: every component
// built by [Builder.Build] is safe to call from multiple goroutines. The
// only suspension point is the optional user loader; everything else is
// synchronous CPU-bound work against in-memory or Redis-backed state.
//
// # Architecture boundaries
//
// veloxauth is the public surface. It exposes [Auth], [Builder], [Config],
// the error families, metrics, and audit sinks. The components live in
// subpackages (token, ratelimit, csrf, revocation) and are aggregated here;
// the middleware package binds them to net/http.
//
// # What this package must NOT do
//
//   - Hash passwords or authenticate credentials; identity is the host
//     application's job, reached through the injected user loader.
//   - Register routes or own an HTTP server; the middleware package adapts
//     handlers, the host mounts them.
//   - Construct process-wide singletons; lifecycle (including the rate-limit
//     sweeper) is explicit through Builder and [Auth.Close].
package veloxauth
