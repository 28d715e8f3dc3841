package rememberme

import (
	"errors"
	"testing"
)

func TestParseCookie(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		series string
		value  string
		err    error
	}{
		{name: "valid", cookie: "c2VyaWVz:dmFsdWU", series: "c2VyaWVz", value: "dmFsdWU"},
		{name: "missing separator", cookie: "c2VyaWVz", err: ErrMalformedCookie},
		{name: "empty series", cookie: ":dmFsdWU", err: ErrMalformedCookie},
		{name: "empty value", cookie: "c2VyaWVz:", err: ErrMalformedCookie},
		{name: "extra separator", cookie: "a:b:c", err: ErrMalformedCookie},
		{name: "not base64url", cookie: "c2Vy+WVz:dmFsdWU", err: ErrMalformedCookie},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, value, err := ParseCookie(tt.cookie)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if series != tt.series || value != tt.value {
				t.Fatalf("got (%q, %q), want (%q, %q)", series, value, tt.series, tt.value)
			}
		})
	}
}

func TestCookieValueRoundTrip(t *testing.T) {
	tok := Token{Series: "c2VyaWVz", TokenValue: "dmFsdWU"}
	series, value, err := ParseCookie(tok.CookieValue())
	if err != nil {
		t.Fatalf("ParseCookie: %v", err)
	}
	if series != tok.Series || value != tok.TokenValue {
		t.Fatalf("round trip mismatch: %q %q", series, value)
	}
}
