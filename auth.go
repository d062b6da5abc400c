package veloxauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/veloxts/veloxauth/csrf"
	"github.com/veloxts/veloxauth/ratelimit"
	"github.com/veloxts/veloxauth/revocation"
	"github.com/veloxts/veloxauth/token"
)

// Auth is the assembled security core: token lifecycle, revocation, rate
// limiting and CSRF protection behind one facade. Construct it with Builder.
//
// Auth instances are intended to be configured during initialization and then
// treated as immutable. All methods are safe for concurrent use.
type Auth struct {
	config      Config
	tokens      *token.Manager
	limiter     *ratelimit.Limiter
	csrf        *csrf.Manager
	revocations revocation.Store
	metrics     *Metrics
	audit       *auditDispatcher
	sweeping    bool
}

// Tokens exposes the token manager for hosts that need the lower-level API.
func (a *Auth) Tokens() *token.Manager { return a.tokens }

// Limiter exposes the rate limiter.
func (a *Auth) Limiter() *ratelimit.Limiter { return a.limiter }

// Csrf exposes the CSRF manager.
func (a *Auth) Csrf() *csrf.Manager { return a.csrf }

// Revocations exposes the revocation store shared with the token manager.
func (a *Auth) Revocations() revocation.Store { return a.revocations }

// Close stops the sweeper goroutine and drains the audit dispatcher. Safe to
// call more than once.
func (a *Auth) Close() {
	if a == nil {
		return
	}
	if a.sweeping {
		a.limiter.StopSweeper()
	}
	if a.audit != nil {
		a.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (a *Auth) AuditDropped() uint64 {
	if a == nil || a.audit == nil {
		return 0
	}
	return a.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (a *Auth) MetricsSnapshot() MetricsSnapshot {
	if a == nil || a.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return a.metrics.Snapshot()
}

func (a *Auth) metricInc(id MetricID) {
	if a == nil || a.metrics == nil {
		return
	}
	a.metrics.Inc(id)
}

func (a *Auth) emitAudit(ctx context.Context, eventType string, success bool, userID, tokenID, key string, err error, metadata func() map[string]string) {
	if a == nil || a.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		TokenID:   tokenID,
		Key:       key,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	a.audit.Emit(ctx, event)
}

// CreateTokenPair issues a fresh access/refresh pair for the user. Extra
// claims are embedded in both tokens; reserved claim names always win.
func (a *Auth) CreateTokenPair(ctx context.Context, user User, extra map[string]any) (TokenPair, error) {
	pair, err := a.tokens.CreatePair(user, extra)
	if err != nil {
		return TokenPair{}, err
	}

	a.metricInc(MetricPairIssued)
	a.emitAudit(ctx, EventPairIssued, true, user.ID, "", "", nil, nil)

	return pair, nil
}

// Session resolves the Authorization header value into a live session, or nil
// when the token is absent, malformed, expired, revoked, or unresolvable.
func (a *Auth) Session(ctx context.Context, authorization string) *Session {
	if a.metrics != nil && a.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			a.metrics.Observe(MetricSessionLatency, time.Since(start))
		}()
	}

	sess := a.tokens.GetSession(ctx, authorization)
	if sess == nil {
		a.metricInc(MetricSessionRejected)
		a.emitAudit(ctx, EventSessionDenied, false, "", "", "", nil, nil)
		return nil
	}

	a.metricInc(MetricSessionResolved)
	return sess
}

// Refresh exchanges a valid refresh token for a new pair. The presented
// refresh token stays valid until it expires or is revoked explicitly.
func (a *Auth) Refresh(ctx context.Context, refreshToken string, extra map[string]any) (TokenPair, error) {
	pair, err := a.tokens.Refresh(ctx, refreshToken, extra)
	if err != nil {
		a.metricInc(MetricRefreshFailure)
		a.emitAudit(ctx, EventRefresh, false, "", "", "", err, nil)
		return TokenPair{}, err
	}

	a.metricInc(MetricRefreshSuccess)
	a.emitAudit(ctx, EventRefresh, true, "", "", "", nil, nil)

	return pair, nil
}

// Logout revokes the token carried by the Authorization header value.
// Logout always succeeds: an absent, malformed or already-dead token leaves
// nothing to revoke, which is the state logout wants.
func (a *Auth) Logout(ctx context.Context, authorization string) {
	a.metricInc(MetricLogout)

	raw, ok := token.BearerToken(authorization)
	if !ok {
		a.emitAudit(ctx, EventLogout, true, "", "", "", nil, nil)
		return
	}

	claims := a.tokens.Decode(raw)
	if claims == nil || claims.ID == "" {
		a.emitAudit(ctx, EventLogout, true, "", "", "", nil, nil)
		return
	}

	// Best effort: a store failure here means the token keeps its natural
	// lifetime, it never fails the logout itself.
	err := a.Revoke(ctx, claims.ID)
	a.emitAudit(ctx, EventLogout, err == nil, claims.Subject, claims.ID, "", err, nil)
}

// Revoke marks a token ID as dead for the remainder of its lifetime.
func (a *Auth) Revoke(ctx context.Context, tokenID string) error {
	err := a.revocations.Revoke(ctx, tokenID)
	if err == nil {
		a.metricInc(MetricRevocation)
		a.emitAudit(ctx, EventRevoked, true, "", tokenID, "", nil, nil)
	}
	return err
}

// Allow consumes one attempt for (operation, key). A *AuthError describes a
// rejection; ErrStoreUnavailable wraps backend failures.
func (a *Auth) Allow(ctx context.Context, op Operation, key string) (ratelimit.Result, error) {
	res, err := a.limiter.Allow(ctx, op, key)
	if err != nil {
		var rlErr *ratelimit.Error
		if errors.As(err, &rlErr) {
			a.metricInc(MetricRateLimitRejected)
			a.emitAudit(ctx, EventRateLimited, false, "", "", key, err, func() map[string]string {
				return map[string]string{
					"operation": string(op),
				}
			})
		}
		return res, err
	}

	a.metricInc(MetricRateLimitAllowed)
	return res, nil
}

// RecordFailure burns one attempt without surfacing a rejection error.
func (a *Auth) RecordFailure(ctx context.Context, op Operation, key string) error {
	return a.limiter.RecordFailure(ctx, op, key)
}

// ResetRateLimit clears the counter and lockout for exactly (operation, key).
func (a *Auth) ResetRateLimit(ctx context.Context, op Operation, key string) error {
	return a.limiter.Reset(ctx, op, key)
}

// IsLockedOut reports whether the pair is inside an active lockout, without
// consuming an attempt.
func (a *Auth) IsLockedOut(ctx context.Context, op Operation, key string) (bool, error) {
	return a.limiter.IsLockedOut(ctx, op, key)
}

// RemainingAttempts reports the budget left in the current window, without
// consuming an attempt.
func (a *Auth) RemainingAttempts(ctx context.Context, op Operation, key string) (int, error) {
	return a.limiter.RemainingAttempts(ctx, op, key)
}

// IssueCsrfToken mints a signed token and sets the double-submit cookie.
func (a *Auth) IssueCsrfToken(w http.ResponseWriter) csrf.Token {
	tok := a.csrf.GenerateToken(w)
	a.metricInc(MetricCsrfIssued)
	return tok
}

// ValidateCsrf runs the full double-submit validation pipeline for the
// request. A nil return means the request passed or was exempt.
func (a *Auth) ValidateCsrf(r *http.Request) *CsrfError {
	err := a.csrf.Validate(r)
	if err != nil {
		a.metricInc(MetricCsrfRejected)
		a.emitAudit(r.Context(), EventCsrfRejected, false, "", "", "", err, func() map[string]string {
			return map[string]string{
				"code": err.Code,
				"path": r.URL.Path,
			}
		})
	}
	return err
}

// ClearCsrfCookie expires the CSRF cookie on the client.
func (a *Auth) ClearCsrfCookie(w http.ResponseWriter) {
	a.csrf.ClearCookie(w)
}
