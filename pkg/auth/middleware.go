package auth

import (
	"net/http"
	"strings"

	"github.com/lexigame/session-service/pkg/api"
)

// Middleware returns HTTP middleware that verifies the bearer token and
// injects the authenticated user into the request context. Requests with
// a missing or invalid token are rejected with a 401 envelope before any
// data access.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.WriteError(w, http.StatusUnauthorized, "Invalid user")
				return
			}

			user, err := v.Parse(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				api.WriteError(w, http.StatusUnauthorized, "Invalid user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireSuperuser returns HTTP middleware that rejects callers below the
// superuser permission level. It must run after Middleware.
func RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFrom(r.Context())
		if !ok || !user.Superuser() {
			api.WriteError(w, http.StatusUnauthorized, "Unauthorized user")
			return
		}
		next.ServeHTTP(w, r)
	})
}
