// Package revocation tracks token identifiers that must no longer be
// accepted, keyed by the token's jti claim.
//
// The unit of revocation is a single credential: revoking an access token's
// jti does not touch the refresh token issued alongside it, because the two
// carry distinct identifiers.
//
// # Architecture boundaries
//
// The package exposes the [Store] capability set (Revoke, IsRevoked, Clear)
// with [MemoryStore] as the single-process default and [RedisStore] as the
// shared-store substitution for horizontally scaled deployments. Swapping
// the implementation is a deployment decision, not an API change.
//
// # What this package must NOT do
//
//   - Parse or verify tokens (that is the token package's job).
//   - Decide which identifiers to revoke; callers extract the jti.
package revocation
