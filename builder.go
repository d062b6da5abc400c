package veloxauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/veloxts/veloxauth/csrf"
	"github.com/veloxts/veloxauth/ratelimit"
	"github.com/veloxts/veloxauth/revocation"
	"github.com/veloxts/veloxauth/token"
)

// Builder assembles an Auth instance from configuration and injected
// dependencies.
//
// Builder instances are intended to be configured during initialization and
// then treated as immutable. A Builder must not be reused after Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userLoader      UserLoader
	revocationStore revocation.Store
	rateLimitStore  ratelimit.Store
	auditSink       AuditSink

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder configuration. The config is deep-copied so
// later mutation of the caller's value has no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSecret sets the signing secret for both the token and CSRF managers
// when they have not been given distinct secrets.
func (b *Builder) WithSecret(secret string) *Builder {
	b.config.Token.Secret = secret
	if b.config.Csrf.Secret == "" {
		b.config.Csrf.Secret = secret
	}
	return b
}

// WithRedis backs the revocation and rate-limit stores with Redis instead of
// the in-memory defaults. Stores injected explicitly still win.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserLoader sets the callback used to hydrate sessions from subject IDs.
func (b *Builder) WithUserLoader(loader UserLoader) *Builder {
	b.userLoader = loader
	return b
}

// WithRevocationStore overrides the revocation store selection.
func (b *Builder) WithRevocationStore(store revocation.Store) *Builder {
	b.revocationStore = store
	return b
}

// WithRateLimitStore overrides the rate-limit store selection.
func (b *Builder) WithRateLimitStore(store ratelimit.Store) *Builder {
	b.rateLimitStore = store
	return b
}

// WithAuditSink sets the destination for audit events and enables the
// dispatcher. Buffer size and drop behavior stay configurable through
// Config.Audit.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the component managers together
// and starts the background sweeper. The returned Auth owns the sweeper and
// audit dispatcher; call Close to release them.
func (b *Builder) Build() (*Auth, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	// -------- REVOCATION STORE --------
	revocations := b.revocationStore
	if revocations == nil {
		if b.redis != nil {
			ttl := cfg.Token.RevocationTTL
			if ttl <= 0 {
				ttl = cfg.Token.RefreshTTL
			}
			revocations = revocation.NewRedisStore(b.redis, cfg.Token.RevocationPrefix, ttl)
		} else {
			revocations = revocation.NewMemoryStore()
		}
	}

	// -------- TOKEN MANAGER --------
	tokens, err := token.NewManager(token.Config{
		Secret:     cfg.Token.Secret,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
	}, revocations, b.userLoader)
	if err != nil {
		return nil, err
	}

	// -------- RATE LIMITER --------
	rlStore := b.rateLimitStore
	if rlStore == nil {
		if b.redis != nil {
			rlStore = ratelimit.NewRedisStore(b.redis, cfg.RateLimit.RedisPrefix, cfg.RateLimit.RedisRetention)
		} else {
			rlStore = ratelimit.NewMemoryStore()
		}
	}

	limiter := ratelimit.New(rlStore, cfg.RateLimit.Policies)

	// -------- CSRF MANAGER --------
	csrfMgr, err := csrf.NewManager(csrf.Config{
		Secret:   cfg.Csrf.Secret,
		TokenTTL: cfg.Csrf.TokenTTL,
		Cookie: csrf.CookieConfig{
			Name:     cfg.Csrf.Cookie.Name,
			Path:     cfg.Csrf.Cookie.Path,
			Domain:   cfg.Csrf.Cookie.Domain,
			Secure:   cfg.Csrf.Cookie.Secure,
			HTTPOnly: cfg.Csrf.Cookie.HTTPOnly,
			SameSite: cfg.Csrf.Cookie.SameSite,
		},
		HeaderName:      cfg.Csrf.HeaderName,
		BodyField:       cfg.Csrf.BodyField,
		AllowQuery:      cfg.Csrf.AllowQuery,
		QueryParam:      cfg.Csrf.QueryParam,
		ExcludePaths:    cfg.Csrf.ExcludePaths,
		ExcludePatterns: cfg.Csrf.ExcludePatterns,
		CheckOrigin:     cfg.Csrf.CheckOrigin,
		AllowedOrigins:  cfg.Csrf.AllowedOrigins,
	})
	if err != nil {
		return nil, err
	}

	auth := &Auth{
		config:      cfg,
		tokens:      tokens,
		limiter:     limiter,
		csrf:        csrfMgr,
		revocations: revocations,
		metrics:     NewMetrics(cfg.Metrics),
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	if cfg.RateLimit.SweepInterval > 0 {
		limiter.StartSweeper(cfg.RateLimit.SweepInterval)
		auth.sweeping = true
	}

	b.built = true

	return auth, nil
}
