package internal

import (
	"encoding/base64"
	"testing"
)

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID error: %v", err)
	}
	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("ParseSessionID error: %v", err)
	}
	if parsed != sid {
		t.Fatal("parsed session id differs")
	}
	if _, err := ParseSessionID("c2hvcnQ"); err == nil {
		t.Fatal("expected short session id to be rejected")
	}
}

func TestRememberMeEntropy(t *testing.T) {
	series, err := NewSeries()
	if err != nil {
		t.Fatalf("NewSeries error: %v", err)
	}
	value, err := NewTokenValue()
	if err != nil {
		t.Fatalf("NewTokenValue error: %v", err)
	}

	for name, s := range map[string]string{"series": series, "value": value} {
		raw, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			t.Fatalf("%s is not base64url: %v", name, err)
		}
		if len(raw)*8 < 128 {
			t.Fatalf("%s carries %d bits, want >= 128", name, len(raw)*8)
		}
	}
}

func TestNewChallengeCode(t *testing.T) {
	code, err := NewChallengeCode(4)
	if err != nil {
		t.Fatalf("NewChallengeCode error: %v", err)
	}
	if len(code) != 4 {
		t.Fatalf("len = %d, want 4", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit %q in %q", c, code)
		}
	}

	if _, err := NewChallengeCode(3); err == nil {
		t.Fatal("expected 3 digits to be rejected")
	}
	if _, err := NewChallengeCode(11); err == nil {
		t.Fatal("expected 11 digits to be rejected")
	}
}
