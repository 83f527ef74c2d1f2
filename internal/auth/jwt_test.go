package auth

import (
	"testing"
	"time"
)

func TestParseTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("test-secret", "sac-auth", time.Minute, 42)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	claims, err := ParseToken("test-secret", "sac-auth", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("expected user 42, got %d", claims.UserID)
	}
}

func TestParseTokenRejectsWrongSecretAndIssuer(t *testing.T) {
	token, err := NewAccessToken("test-secret", "sac-auth", time.Minute, 42)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other-secret", "sac-auth", token); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}
	if _, err := ParseToken("test-secret", "someone-else", token); err == nil {
		t.Fatalf("expected wrong issuer to fail")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := NewAccessToken("test-secret", "sac-auth", -time.Minute, 42)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("test-secret", "sac-auth", token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestParseTokenRequiresUser(t *testing.T) {
	token, err := NewAccessToken("test-secret", "sac-auth", time.Minute, 0)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("test-secret", "sac-auth", token); err == nil {
		t.Fatalf("expected missing user_id to fail")
	}
}
