package middleware

import (
	"net/http"

	"github.com/MrEthical07/formauth"
)

// RequireAuthority rejects authenticated requests whose identity lacks
// authority. It must run behind [Guard] or [RequireBearer].
func RequireAuthority(authority string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := formauth.IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
				return
			}
			if !id.HasAuthority(authority) {
				WriteError(w, http.StatusForbidden, "access_denied", "Access is denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
