package veloxauth

import (
	"github.com/veloxts/veloxauth/csrf"
	"github.com/veloxts/veloxauth/ratelimit"
	"github.com/veloxts/veloxauth/token"
)

// User is the subject identity embedded in issued tokens.
type User = token.User

// Session is the result of resolving a bearer credential.
type Session = token.Session

// TokenPair is an access/refresh pair issued together for one user.
type TokenPair = token.Pair

// UserLoader hydrates the session subject; returning (nil, nil) is treated
// as "no session."
type UserLoader = token.UserLoader

// AuthError is the rate-limiting member of the error family: statusCode 429
// with code RATE_LIMIT_EXCEEDED and a Retry-After hint.
type AuthError = ratelimit.Error

// CsrfError is the CSRF member of the error family: statusCode 403 with one
// of the six validation-stage codes.
type CsrfError = csrf.Error

// Operation identifies a rate-limited surface.
type Operation = ratelimit.Operation

// Rate-limited operations.
const (
	OpLogin         = ratelimit.OpLogin
	OpRegister      = ratelimit.OpRegister
	OpPasswordReset = ratelimit.OpPasswordReset
	OpRefresh       = ratelimit.OpRefresh
)
