package jwt

import (
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	token, expires, err := GenerateToken("session-1", "Ada", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expiry should be in the future")
	}
	claims, err := Parse(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SessionID != "session-1" || claims.UserName != "Ada" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := Parse(token, "other"); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := GenerateToken("session-1", "", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "secret"); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestParseRequiresSession(t *testing.T) {
	token, _, err := GenerateToken("", "", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "secret"); err != ErrMissingSession {
		t.Fatalf("expected ErrMissingSession, got %v", err)
	}
}
