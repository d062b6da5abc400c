package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Failure codes, one per validation stage.
const (
	CodeMissingCookie    = "CSRF_MISSING_COOKIE"
	CodeMissingToken     = "CSRF_MISSING_TOKEN"
	CodeTokenMismatch    = "CSRF_TOKEN_MISMATCH"
	CodeInvalidSignature = "CSRF_INVALID_SIGNATURE"
	CodeTokenExpired     = "CSRF_TOKEN_EXPIRED"
	CodeOriginMismatch   = "CSRF_ORIGIN_MISMATCH"
)

const (
	// MinSecretLength is the minimum MAC secret size accepted by [NewManager].
	MinSecretLength = 32

	defaultCookieName = "velox.csrf"
	defaultHeaderName = "x-csrf-token"
	defaultBodyField  = "_csrf"
	defaultQueryParam = "csrf"
)

var (
	// ErrSecretTooShort is returned by [NewManager] for MAC secrets under 32 bytes.
	ErrSecretTooShort = errors.New("csrf secret must be at least 32 bytes")
	// ErrInsecureSameSiteNone rejects SameSite=None cookies without Secure.
	ErrInsecureSameSiteNone = errors.New("csrf cookie with SameSite=None requires Secure")
)

// Error is the CSRF member of the auth error family. StatusCode is always
// 403; Code is one of the six validation-stage codes.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string { return e.Message }

func failure(code, message string) *Error {
	return &Error{StatusCode: http.StatusForbidden, Code: code, Message: message}
}

// CookieConfig controls the double-submit cookie.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// Config carries the MAC secret and validation settings for [NewManager].
type Config struct {
	Secret string
	// TokenTTL of zero issues tokens that never expire.
	TokenTTL time.Duration

	Cookie     CookieConfig
	HeaderName string
	BodyField  string
	// AllowQuery opts in to reading the token from the query string.
	AllowQuery bool
	QueryParam string

	// ExcludePaths skips validation for exact path matches;
	// ExcludePatterns for regular-expression matches.
	ExcludePaths    []string
	ExcludePatterns []*regexp.Regexp

	// CheckOrigin compares the Origin header (falling back to Referer)
	// against the request host. AllowedOrigins are exact
	// scheme://host[:port] strings exempt from that comparison.
	CheckOrigin    bool
	AllowedOrigins []string
}

// Token is the generated credential handed back to the application for
// embedding in forms or headers. Value is the full four-segment token.
type Token struct {
	Value     string
	ExpiresAt int64
}

// Parsed is the decomposed four-segment token.
type Parsed struct {
	Value     string
	IssuedAt  int64
	ExpiresAt int64
	Signature string
}

// Manager issues and validates signed double-submit CSRF tokens.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	secret []byte
	cfg    Config

	now func() time.Time
}

// NewManager validates the configuration and constructs a [Manager]. Short
// secrets and a SameSite=None cookie without Secure are construction-time
// misconfigurations and fail immediately.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if cfg.Cookie.SameSite == http.SameSiteNoneMode && !cfg.Cookie.Secure {
		return nil, ErrInsecureSameSiteNone
	}

	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = defaultCookieName
	}
	if cfg.Cookie.Path == "" {
		cfg.Cookie.Path = "/"
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = defaultHeaderName
	}
	if cfg.BodyField == "" {
		cfg.BodyField = defaultBodyField
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = defaultQueryParam
	}

	return &Manager{secret: []byte(cfg.Secret), cfg: cfg, now: time.Now}, nil
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string { return m.cfg.Cookie.Name }

// HeaderName returns the configured submission header.
func (m *Manager) HeaderName() string { return m.cfg.HeaderName }

// GenerateToken mints a fresh token, sets it as the double-submit cookie on
// the reply, and returns it so the application can also deliver it in the
// response body.
func (m *Manager) GenerateToken(w http.ResponseWriter) Token {
	value := uuid.NewString()
	issuedAt := m.now().Unix()

	var expiresAt int64
	if m.cfg.TokenTTL > 0 {
		expiresAt = issuedAt + int64(m.cfg.TokenTTL.Seconds())
	}

	sig := m.mac(value, issuedAt, expiresAt)
	token := fmt.Sprintf("%s.%d.%d.%s", value, issuedAt, expiresAt, sig)

	http.SetCookie(w, m.cookie(token, 0))
	return Token{Value: token, ExpiresAt: expiresAt}
}

// ClearCookie removes the CSRF cookie using the configured name, path, and
// domain.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie("", -1))
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.Cookie.Name,
		Value:    value,
		Path:     m.cfg.Cookie.Path,
		Domain:   m.cfg.Cookie.Domain,
		Secure:   m.cfg.Cookie.Secure,
		HttpOnly: m.cfg.Cookie.HTTPOnly,
		SameSite: m.cfg.Cookie.SameSite,
		MaxAge:   maxAge,
	}
}

func (m *Manager) mac(value string, issuedAt, expiresAt int64) string {
	h := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(h, "%s|%d|%d", value, issuedAt, expiresAt)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// ParseToken splits a token into its four dot-separated segments. Malformed
// input of any kind parses to nil; it never panics or errors.
func ParseToken(token string) *Parsed {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil
	}
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}

	issuedAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	expiresAt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil
	}

	return &Parsed{
		Value:     parts[0],
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Signature: parts[3],
	}
}

// VerifySignature recomputes the MAC over the token's first three segments
// and compares it against the fourth. Malformed tokens and empty signatures
// are always invalid.
func (m *Manager) VerifySignature(token string) bool {
	p := ParseToken(token)
	if p == nil {
		return false
	}
	expected := m.mac(p.Value, p.IssuedAt, p.ExpiresAt)
	return hmac.Equal([]byte(p.Signature), []byte(expected))
}

// ExtractToken finds the submitted token in, in priority order, the request
// header, the body field, then (if enabled) the query parameter.
func (m *Manager) ExtractToken(r *http.Request) string {
	if v := r.Header.Get(m.cfg.HeaderName); v != "" {
		return v
	}
	if v := r.PostFormValue(m.cfg.BodyField); v != "" {
		return v
	}
	if m.cfg.AllowQuery {
		if v := r.URL.Query().Get(m.cfg.QueryParam); v != "" {
			return v
		}
	}
	return ""
}

// Validate runs the full check sequence against the request and returns nil
// when the request may proceed, or an [*Error] naming the first stage that
// failed. Safe methods and excluded paths skip validation entirely.
func (m *Manager) Validate(r *http.Request) *Error {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}
	if m.pathExcluded(r.URL.Path) {
		return nil
	}

	cookie, err := r.Cookie(m.cfg.Cookie.Name)
	if err != nil || cookie.Value == "" {
		return failure(CodeMissingCookie, "CSRF cookie missing")
	}

	submitted := m.ExtractToken(r)
	if submitted == "" {
		return failure(CodeMissingToken, "CSRF token missing from request")
	}

	// Double-submit check: cookie and submitted value must match exactly,
	// in both length and content.
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) != 1 {
		return failure(CodeTokenMismatch, "CSRF token does not match cookie")
	}

	if !m.VerifySignature(cookie.Value) {
		return failure(CodeInvalidSignature, "CSRF token signature invalid")
	}

	p := ParseToken(cookie.Value)
	if p.ExpiresAt != 0 && m.now().Unix() > p.ExpiresAt {
		return failure(CodeTokenExpired, "CSRF token expired")
	}

	if m.cfg.CheckOrigin {
		if err := m.checkOrigin(r); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) pathExcluded(path string) bool {
	for _, p := range m.cfg.ExcludePaths {
		if path == p {
			return true
		}
	}
	for _, re := range m.cfg.ExcludePatterns {
		if re != nil && re.MatchString(path) {
			return true
		}
	}
	return false
}

// checkOrigin compares scheme, host, and port of the Origin header (falling
// back to Referer) against the request's own host. Matching is
// case-sensitive, deliberately stricter than the RFC: a different
// subdomain, a different port, or an https→http downgrade all mismatch.
func (m *Manager) checkOrigin(r *http.Request) *Error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if origin == "" {
		return failure(CodeOriginMismatch, "request origin could not be determined")
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return failure(CodeOriginMismatch, "request origin invalid")
	}

	for _, allowed := range m.cfg.AllowedOrigins {
		if u.Scheme+"://"+u.Host == allowed {
			return nil
		}
	}

	reqScheme := "http"
	if r.TLS != nil {
		reqScheme = "https"
	}

	if u.Scheme != reqScheme {
		return failure(CodeOriginMismatch, "request origin scheme mismatch")
	}
	if hostPort(u.Host, u.Scheme) != hostPort(r.Host, reqScheme) {
		return failure(CodeOriginMismatch, "request origin host mismatch")
	}

	return nil
}

// hostPort normalizes a host to host:port, filling the scheme's default
// port when absent so example.com and example.com:443 compare equal under
// https.
func hostPort(host, scheme string) string {
	if strings.LastIndexByte(host, ':') > strings.LastIndexByte(host, ']') {
		return host
	}
	switch scheme {
	case "https":
		return host + ":443"
	default:
		return host + ":80"
	}
}
