package middleware

import (
	"encoding/json"
	"net/http"

	veloxauth "github.com/veloxts/veloxauth"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// RefreshHandler exchanges a refresh token carried in the request body for a
// fresh pair. Unlike session resolution this endpoint surfaces the reason a
// credential was rejected: the caller is actively exchanging a token and
// needs actionable feedback.
func RefreshHandler(auth *veloxauth.Auth) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "Missing refreshToken in request body")
			return
		}

		pair, err := auth.Refresh(r.Context(), body.RefreshToken, nil)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, pair)
	})
}

// LogoutHandler revokes the access token on the request. Logout always
// answers 200, even when no resolvable token was presented: an absent or
// already-dead token is exactly the state logout wants.
func LogoutHandler(auth *veloxauth.Auth) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		auth.Logout(r.Context(), r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
}

// CsrfTokenHandler mints a double-submit token: the cookie is set on the
// response and the value is returned for embedding in forms or headers.
func CsrfTokenHandler(auth *veloxauth.Auth) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := auth.IssueCsrfToken(w)
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": tok.Value})
	})
}
