package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/veloxts/veloxauth/revocation"
)

// Type discriminates access tokens from refresh tokens. The two are never
// interchangeable at verification time.
type Type string

const (
	// TypeAccess marks short-lived bearer credentials.
	TypeAccess Type = "access"
	// TypeRefresh marks long-lived exchange credentials.
	TypeRefresh Type = "refresh"
)

const (
	// MinSecretLength is the minimum signing secret size accepted by [NewManager].
	MinSecretLength = 64

	minAccessTTL = time.Minute

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrSecretTooShort is returned by [NewManager] for signing secrets under 64 bytes.
	ErrSecretTooShort = errors.New("token signing secret must be at least 64 bytes")
	// ErrInvalidSignature indicates the token signature does not verify, or the token is malformed.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired indicates the token's exp claim is in the past.
	ErrExpired = errors.New("token expired")
	// ErrWrongTokenType indicates an access token was presented as a refresh token or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrRevoked indicates the token's jti has been revoked.
	ErrRevoked = errors.New("token revoked")
	// ErrUnknownSubject indicates the user loader could not resolve the token's subject.
	ErrUnknownSubject = errors.New("unknown token subject")
)

// User is the subject a token pair is issued for.
type User struct {
	ID    string
	Email string
}

// UserLoader hydrates a richer user object during session resolution and
// refresh. Returning (nil, nil) means "no such user" and fails the session
// closed. The loader is the only suspension point in the package; it may
// perform I/O.
type UserLoader func(ctx context.Context, sub string) (*User, error)

// Claims is the decoded claim set of a signed token.
type Claims struct {
	Subject   string
	Email     string
	TokenType Type
	ID        string // jti, the unit of revocation
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// Pair is an access/refresh token pair issued together for one user at one
// instant. ExpiresIn is the access token's remaining lifetime in seconds.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Session is the result of resolving an Authorization header: the hydrated
// user plus the verified access-token claims.
type Session struct {
	User   User
	Claims *Claims
}

// Config carries the signing secret and optional lifetime overrides for
// [NewManager]. Zero lifetimes select the defaults (15m access, 7d refresh).
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Manager issues, verifies, and decodes signed session tokens, and resolves
// bearer sessions against the revocation store and user loader.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	secret      []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	revocations revocation.Store
	loader      UserLoader

	now func() time.Time
}

// NewManager validates the configuration and constructs a [Manager].
// Secrets shorter than [MinSecretLength] are rejected immediately; a short
// signing secret is a programmer error, not a runtime condition. The access
// lifetime is floor-clamped to one minute.
func NewManager(cfg Config, revocations revocation.Store, loader UserLoader) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.AccessTTL < minAccessTTL {
		cfg.AccessTTL = minAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}

	return &Manager{
		secret:      []byte(cfg.Secret),
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		revocations: revocations,
		loader:      loader,
		now:         time.Now,
	}, nil
}

// AccessTTL returns the effective access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the effective refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// CreatePair issues two independently signed tokens for the user, each with
// a freshly generated jti. Extra claims are embedded in both tokens but can
// never shadow the reserved claims (sub, email, type, jti, iat, exp).
// CreatePair has no side effects beyond signing: it is a pure function of
// its inputs, the clock, and the RNG.
func (m *Manager) CreatePair(user User, extra map[string]any) (Pair, error) {
	access, err := m.sign(user, TypeAccess, m.accessTTL, extra)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.sign(user, TypeRefresh, m.refreshTTL, extra)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

func (m *Manager) sign(user User, typ Type, ttl time.Duration, extra map[string]any) (string, error) {
	now := m.now()

	claims := make(jwt.MapClaims, len(extra)+6)
	for k, v := range extra {
		claims[k] = v
	}
	claims["sub"] = user.ID
	claims["email"] = user.Email
	claims["type"] = string(typ)
	claims["jti"] = uuid.NewString()
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(ttl))

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks the signature and lifetime of the token and enforces the
// expected token type. A refresh token presented where an access token is
// expected (and vice versa) fails with [ErrWrongTokenType]: this is a
// deliberate type-confusion guard, not a convenience check.
func (m *Manager) Verify(tokenStr string, expected Type) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)

	parsed, err := parser.Parse(tokenStr, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrInvalidSignature
		}
	}

	raw, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSignature
	}

	claims := mapToClaims(raw)
	if claims.TokenType != expected {
		return nil, fmt.Errorf("%w: expected %s token", ErrWrongTokenType, expected)
	}

	return claims, nil
}

// Decode extracts claims without verifying the signature. It exists for
// inspection only — pulling the jti out of the current access token at
// logout — and must never back an authorization decision on its own.
// Malformed input decodes to nil.
func (m *Manager) Decode(tokenStr string) *Claims {
	parsed, _, err := jwt.NewParser().ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	raw, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return mapToClaims(raw)
}

// GetSession resolves an Authorization header into a session, failing
// closed: a missing, malformed, expired, wrong-type, or revoked token all
// produce nil rather than an error, so route handlers can treat
// "unauthenticated" as a single branch.
func (m *Manager) GetSession(ctx context.Context, authorization string) *Session {
	raw, ok := BearerToken(authorization)
	if !ok {
		return nil
	}

	claims, err := m.Verify(raw, TypeAccess)
	if err != nil {
		return nil
	}

	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(ctx, claims.ID)
		if err != nil || revoked {
			return nil
		}
	}

	user := User{ID: claims.Subject, Email: claims.Email}
	if m.loader != nil {
		loaded, err := m.loader(ctx, claims.Subject)
		if err != nil || loaded == nil {
			return nil
		}
		user = *loaded
	}

	return &Session{User: user, Claims: claims}
}

// Refresh verifies the presented token explicitly as a refresh token and
// issues a brand-new pair. The old refresh token is NOT revoked here;
// callers wanting single-use refresh tokens must revoke its jti explicitly.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, extra map[string]any) (Pair, error) {
	claims, err := m.Verify(refreshToken, TypeRefresh)
	if err != nil {
		return Pair{}, err
	}

	if m.revocations != nil {
		revoked, rerr := m.revocations.IsRevoked(ctx, claims.ID)
		if rerr != nil {
			return Pair{}, rerr
		}
		if revoked {
			return Pair{}, ErrRevoked
		}
	}

	user := User{ID: claims.Subject, Email: claims.Email}
	if m.loader != nil {
		loaded, lerr := m.loader(ctx, claims.Subject)
		if lerr != nil {
			return Pair{}, lerr
		}
		if loaded == nil {
			return Pair{}, ErrUnknownSubject
		}
		user = *loaded
	}

	return m.CreatePair(user, extra)
}

func mapToClaims(raw jwt.MapClaims) *Claims {
	c := &Claims{Extra: make(map[string]any)}

	for k, v := range raw {
		switch k {
		case "sub":
			c.Subject, _ = v.(string)
		case "email":
			c.Email, _ = v.(string)
		case "type":
			s, _ := v.(string)
			c.TokenType = Type(s)
		case "jti":
			c.ID, _ = v.(string)
		case "iat":
			c.IssuedAt = numericTime(v)
		case "exp":
			c.ExpiresAt = numericTime(v)
		default:
			c.Extra[k] = v
		}
	}

	return c
}

func numericTime(v any) time.Time {
	// MapClaims decodes iat/exp as float64 seconds.
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0)
	case int64:
		return time.Unix(n, 0)
	}
	return time.Time{}
}

// BearerToken strips the "Bearer " scheme from an Authorization header
// value. The scheme match is case-sensitive.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
