// Package csrf implements signed double-submit CSRF protection.
//
// A token is four dot-separated fields: value.issuedAt.expiresAt.signature,
// where value is a random nonce, the timestamps are integer Unix seconds
// (expiresAt of zero means "never expires"), and signature is an
// HMAC-SHA256 over the first three fields. The server sets the token as a
// cookie and the client echoes it back in a header, body field, or query
// parameter; validation requires both copies present and byte-equal on top
// of the signature verifying.
//
// # Validation order
//
// Safe methods and excluded paths skip validation. Otherwise the stages run
// in a fixed order, each with its own failure code: missing cookie, missing
// submitted token, cookie/submission mismatch, invalid signature, expiry,
// then (when enabled) the strict origin comparison.
//
// # What this package must NOT do
//
//   - Issue session tokens or consult revocation state.
//   - Tolerate a SameSite=None cookie without Secure; that combination is
//     rejected at construction, not at runtime.
package csrf
