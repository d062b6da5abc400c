package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	veloxauth "github.com/veloxts/veloxauth"
	"github.com/veloxts/veloxauth/ratelimit"
)

// KeyExtractor derives the rate-limit key from a request: client IP, user
// ID, form field, or any combination.
type KeyExtractor func(*http.Request) string

// ClientIP extracts the client address, honoring X-Forwarded-For and
// X-Real-IP for proxied requests before falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// SessionKey extracts the authenticated user ID injected by [Guard].
// Returns empty string, which the limiter folds to its default key, when the
// request carries no session.
func SessionKey(r *http.Request) string {
	if sess, ok := SessionFromContext(r.Context()); ok {
		return sess.User.ID
	}
	return ""
}

// FormFieldKey extracts a key from a form field, e.g. the submitted username
// on a login route so attempts against one account share a budget regardless
// of source address.
func FormFieldKey(field string) KeyExtractor {
	return func(r *http.Request) string {
		if err := r.ParseForm(); err == nil {
			return r.FormValue(field)
		}
		return ""
	}
}

// CompositeKey joins several extractors with a separator, skipping the ones
// that produce nothing.
func CompositeKey(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// RateLimit enforces the operation's policy per extracted key. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejections additionally carry Retry-After and a 429
// body with the machine-readable code.
func RateLimit(auth *veloxauth.Auth, op veloxauth.Operation, extract KeyExtractor) func(http.Handler) http.Handler {
	if extract == nil {
		extract = ClientIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := auth.Allow(r.Context(), op, extract(r))

			var rlErr *ratelimit.Error
			if err != nil && !errors.As(err, &rlErr) {
				// Store outage: enforcement fails closed, the client can
				// retry. The zero-valued Result is not a real budget, so no
				// X-RateLimit headers.
				writeError(w, http.StatusServiceUnavailable, "Rate limit check unavailable")
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.ResetAt.IsZero() {
				h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}

			if rlErr != nil {
				retryAfter := int64((rlErr.RetryAfter + time.Second - 1) / time.Second)
				h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				writeJSON(w, rlErr.StatusCode, map[string]string{
					"error": rlErr.Message,
					"code":  rlErr.Code,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
