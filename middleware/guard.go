package middleware

import (
	"context"
	"net/http"

	veloxauth "github.com/veloxts/veloxauth"
)

type sessionContextKey struct{}

// SessionFromContext returns the session injected by [Guard], if any.
func SessionFromContext(ctx context.Context) (*veloxauth.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*veloxauth.Session)
	return sess, ok
}

// Guard rejects requests without a resolvable session. On success the session
// is available to downstream handlers via [SessionFromContext].
func Guard(auth *veloxauth.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			sess := auth.Session(r.Context(), r.Header.Get("Authorization"))
			if sess == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
