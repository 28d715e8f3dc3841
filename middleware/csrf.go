package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/formauth/internal"
)

const (
	// CSRFCookieName is readable by scripts so pages can echo it back.
	CSRFCookieName = "XSRF-TOKEN"
	CSRFHeaderName = "X-XSRF-TOKEN"
	CSRFFormField  = "_csrf"
)

type csrfContextKey struct{}

// CSRFToken returns the token issued or accepted for this request.
func CSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey{}).(string)
	return token
}

// CSRF implements double-submit cookie protection. Safe methods receive a
// token cookie when they have none; state-changing methods must echo the
// cookie value in the X-XSRF-TOKEN header or the _csrf form field.
// Requests carrying a bearer token are exempt because browsers never attach
// one on their own.
func CSRF(secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie := CookieValue(r, CSRFCookieName)

			if isSafeMethod(r.Method) {
				if cookie == "" {
					token, err := internal.NewTokenValue()
					if err != nil {
						logger.ErrorContext(r.Context(), "csrf token generation failed", "error", err)
						WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
						return
					}
					http.SetCookie(w, &http.Cookie{
						Name:     CSRFCookieName,
						Value:    token,
						Path:     "/",
						HttpOnly: false,
						Secure:   secure,
						SameSite: http.SameSiteLaxMode,
					})
					cookie = token
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, cookie)))
				return
			}

			if _, ok := bearerToken(r.Header.Get("Authorization")); ok {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get(CSRFHeaderName)
			if presented == "" {
				presented = r.PostFormValue(CSRFFormField)
			}
			if cookie == "" || presented == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(presented)) != 1 {
				logger.WarnContext(r.Context(), "csrf validation failed",
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
				WriteError(w, http.StatusForbidden, "csrf_invalid", "Invalid or missing CSRF token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, cookie)))
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
