// Package middleware exposes net/http adapters for the veloxauth security
// core: bearer-token guarding, refresh/logout endpoints, per-route rate
// limiting, and CSRF enforcement.
//
// # Handlers and guards
//
//   - [Guard] — resolves the Authorization header into a session and injects
//     it into the request context, rejecting with 401 otherwise.
//   - [RefreshHandler] — POST endpoint exchanging a refresh token for a pair.
//   - [LogoutHandler] — POST endpoint revoking the presented access token.
//   - [CsrfTokenHandler] — GET endpoint minting the double-submit token.
//   - [RateLimit] — per-route attempt limiting with X-RateLimit-* headers.
//   - [Protect] — CSRF validation for state-changing requests.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Auth calls. It does NOT
// implement authentication logic itself — all decisions are delegated to the
// veloxauth core.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Auth).
//   - Talk to the revocation or rate-limit stores (Auth handles I/O).
//   - Make authorization decisions beyond pass/reject from the core.
package middleware
