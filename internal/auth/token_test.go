package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("s3cret", "user-42", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseToken("s3cret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Fatalf("expected user-42, got %s", claims.UserID)
	}
}

func TestParseTokenRejects(t *testing.T) {
	expired, err := GenerateToken("s3cret", "user-42", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	valid, err := GenerateToken("s3cret", "user-42", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := map[string]struct {
		secret, token string
	}{
		"expired":      {"s3cret", expired},
		"wrong secret": {"other", valid},
		"garbage":      {"s3cret", "not.a.token"},
	}
	for name, tt := range tests {
		if _, err := ParseToken(tt.secret, tt.token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc.def"); !ok || tok != "abc.def" {
		t.Fatalf("expected abc.def, got %q ok=%v", tok, ok)
	}
	if tok, ok := BearerToken("bearer  xyz "); !ok || tok != "xyz" {
		t.Fatalf("expected xyz, got %q ok=%v", tok, ok)
	}
	for _, h := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		if _, ok := BearerToken(h); ok {
			t.Fatalf("expected %q to be rejected", h)
		}
	}
}
