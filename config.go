package veloxauth

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/veloxts/veloxauth/ratelimit"
)

// Config is the full configuration surface consumed by Builder. Zero values
// fall back to the defaults from defaultConfig, except secrets, which must
// be provided.
type Config struct {
	Token     TokenConfig
	RateLimit RateLimitConfig
	Csrf      CsrfConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig carries the signing secret and lifetime overrides for the
// token manager. The secret must be at least 64 bytes; the access lifetime
// is floor-clamped to one minute.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RevocationPrefix and RevocationTTL apply only when the revocation
	// store is Redis-backed.
	RevocationPrefix string
	RevocationTTL    time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds one policy per operation plus the sweep cadence.
// A SweepInterval of zero disables the background sweep.
type RateLimitConfig struct {
	Policies      map[Operation]ratelimit.Policy
	SweepInterval time.Duration
	// RedisPrefix and RedisRetention apply only when the rate-limit store
	// is Redis-backed.
	RedisPrefix    string
	RedisRetention time.Duration
}

/*
====================================
CSRF CONFIG
====================================
*/

// CsrfCookieConfig controls the double-submit cookie.
type CsrfCookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// CsrfConfig carries the MAC secret (at least 32 bytes) and validation
// settings for the CSRF manager.
type CsrfConfig struct {
	Secret   string
	TokenTTL time.Duration

	Cookie     CsrfCookieConfig
	HeaderName string
	BodyField  string
	AllowQuery bool
	QueryParam string

	ExcludePaths    []string
	ExcludePatterns []*regexp.Regexp

	CheckOrigin    bool
	AllowedOrigins []string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher. With DropIfFull set,
// events are discarded under backpressure and counted; otherwise Emit blocks
// until the buffer drains or the context is cancelled.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles counter collection. Latency histograms cost one
// clock read per session resolution and are off unless requested.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ErrInvalidSweepInterval rejects negative sweep intervals at construction.
var ErrInvalidSweepInterval = errors.New("invalid rate limit sweep interval")

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Policies: map[Operation]ratelimit.Policy{
				OpLogin: {
					MaxAttempts:        5,
					Window:             15 * time.Minute,
					Lockout:            15 * time.Minute,
					ProgressiveBackoff: true,
					Message:            "Too many login attempts",
				},
				OpRegister: {
					MaxAttempts: 3,
					Window:      time.Hour,
					Lockout:     time.Hour,
					Message:     "Too many registration attempts",
				},
				OpPasswordReset: {
					MaxAttempts: 3,
					Window:      time.Hour,
					Lockout:     time.Hour,
					Message:     "Too many password reset attempts",
				},
				OpRefresh: {
					MaxAttempts: 10,
					Window:      15 * time.Minute,
					Lockout:     15 * time.Minute,
					Message:     "Too many refresh attempts",
				},
			},
			SweepInterval: 5 * time.Minute,
		},
		Csrf: CsrfConfig{
			Cookie: CsrfCookieConfig{
				Name:     "velox.csrf",
				Path:     "/",
				HTTPOnly: true,
				SameSite: http.SameSiteLaxMode,
			},
			HeaderName: "x-csrf-token",
			BodyField:  "_csrf",
			QueryParam: "csrf",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// validateConfig checks the cross-cutting settings the subpackage
// constructors cannot see. Secret lengths and the SameSite/Secure
// combination are validated by the token and csrf constructors themselves.
func validateConfig(cfg Config) error {
	if cfg.RateLimit.SweepInterval < 0 {
		return ErrInvalidSweepInterval
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg

	if cfg.RateLimit.Policies != nil {
		out.RateLimit.Policies = make(map[Operation]ratelimit.Policy, len(cfg.RateLimit.Policies))
		for op, p := range cfg.RateLimit.Policies {
			out.RateLimit.Policies[op] = p
		}
	}

	out.Csrf.ExcludePaths = append([]string(nil), cfg.Csrf.ExcludePaths...)
	out.Csrf.ExcludePatterns = append([]*regexp.Regexp(nil), cfg.Csrf.ExcludePatterns...)
	out.Csrf.AllowedOrigins = append([]string(nil), cfg.Csrf.AllowedOrigins...)

	return out
}
