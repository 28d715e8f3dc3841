package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/formauth"
	"github.com/MrEthical07/formauth/rememberme"
)

// SetSessionCookie writes the session identifier cookie. It is a browser
// session cookie; the server-side record carries the real expiry.
func SetSessionCookie(w http.ResponseWriter, cfg formauth.Config, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetRememberMeCookie writes tok with a lifetime of
// RememberMe.TokenValidity.
func SetRememberMeCookie(w http.ResponseWriter, cfg formauth.Config, tok *rememberme.Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.RememberMe.CookieName,
		Value:    tok.CookieValue(),
		Path:     "/",
		MaxAge:   int(cfg.RememberMe.TokenValidity / time.Second),
		HttpOnly: true,
		Secure:   cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the named cookie.
func ClearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// CookieValue returns the value of the named cookie or "".
func CookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
