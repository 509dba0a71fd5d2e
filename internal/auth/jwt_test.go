package auth

import (
	"testing"
	"time"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	token, err := svc.Generate("user-1", "alice")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	userID, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("Verify() = %q, want user-1", userID)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	if _, err := svc.Verify("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewJWTService("secret-a", time.Hour)
	verifier := NewJWTService("secret-b", time.Hour)

	token, err := signer.Generate("user-1", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := verifier.Verify(token); err != ErrInvalidToken {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := NewJWTService("test-secret", -time.Minute)
	token, err := svc.Generate("user-1", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := svc.Verify(token); err != ErrInvalidToken {
		t.Fatalf("Verify() of expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestGenerateRequiresUserID(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	if _, err := svc.Generate("  ", ""); err == nil {
		t.Fatalf("Generate() with blank user id should fail")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"abc", "abc"},
		{"  Bearer   abc  ", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
