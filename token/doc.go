// Package token issues, verifies, and decodes the signed session tokens
// used by veloxauth: HS256-signed JWTs carrying sub, email, type, jti, iat,
// and exp plus arbitrary caller-supplied claims.
//
// Access and refresh tokens are independent credentials with distinct jti
// values and strictly enforced type claims. [Manager.Verify] rejects a
// refresh token presented as an access token and vice versa.
//
// # Architecture boundaries
//
// The package owns the signing secret and token format. Revocation state is
// consulted through [revocation.Store]; user hydration happens through the
// injected [UserLoader]. Both are interfaces so the host application stays
// in control of storage and identity.
//
// # What this package must NOT do
//
//   - Touch HTTP requests or replies (the middleware package binds those).
//   - Hash passwords or authenticate credentials.
//   - Revoke tokens implicitly; revocation is always an explicit caller act.
package token
