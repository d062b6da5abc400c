package middleware

import (
	"net/http"

	veloxauth "github.com/veloxts/veloxauth"
)

// Protect enforces CSRF validation on state-changing requests. Safe methods
// and excluded paths pass through untouched; violations answer 403 with the
// machine-readable code from the CSRF taxonomy.
func Protect(auth *veloxauth.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := auth.ValidateCsrf(r); err != nil {
				writeJSON(w, err.StatusCode, map[string]string{
					"error": err.Message,
					"code":  err.Code,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
