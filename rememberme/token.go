package rememberme

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

var (
	ErrTokenNotFound    = errors.New("remember-me series not found")
	ErrTokenExpired     = errors.New("remember-me token expired")
	ErrTokenTheft       = errors.New("remember-me token reused")
	ErrMalformedCookie  = errors.New("malformed remember-me cookie")
	ErrStoreUnavailable = errors.New("remember-me store unavailable")
)

// Token is a remember-me credential. TokenValue is the plaintext value and
// is only populated on tokens returned from Issue and ValidateAndRotate.
type Token struct {
	Series     string
	TokenValue string
	Username   string
	LastUsedAt time.Time
}

// CookieValue renders the token as "series:tokenValue".
func (t Token) CookieValue() string {
	return t.Series + ":" + t.TokenValue
}

// ParseCookie splits a "series:tokenValue" cookie. Both halves must be
// non-empty base64url.
func ParseCookie(value string) (series, tokenValue string, err error) {
	series, tokenValue, ok := strings.Cut(value, ":")
	if !ok || series == "" || tokenValue == "" || strings.Contains(tokenValue, ":") {
		return "", "", ErrMalformedCookie
	}
	for _, part := range []string{series, tokenValue} {
		if _, err := base64.RawURLEncoding.DecodeString(part); err != nil {
			return "", "", ErrMalformedCookie
		}
	}
	return series, tokenValue, nil
}

func expired(lastUsed, now time.Time, validity time.Duration) bool {
	return now.Sub(lastUsed) > validity
}
