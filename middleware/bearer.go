package middleware

import (
	"net/http"

	"github.com/MrEthical07/formauth"
)

// RequireBearer accepts only a valid bearer token and never falls back to
// the session or a redirect. Use it for API routes called by clients that
// cannot hold cookies.
func RequireBearer(engine *formauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || !engine.BearerEnabled() {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="formauth"`)
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
				return
			}

			id, err := engine.ValidateAccessToken(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="formauth", error="invalid_token"`)
				writeFailure(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(formauth.WithIdentity(r.Context(), id)))
		})
	}
}
