package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	token, err := m.Issue("user-1", "a@b.c", "alpha", "trader")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@b.c" || claims.Team != "alpha" || claims.Role != "trader" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)
	token, err := m.Issue("user-1", "a@b.c", "alpha", "trader")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewManager("secret-a", time.Hour)
	verifier := NewManager("secret-b", time.Hour)
	token, err := issuer.Issue("user-1", "a@b.c", "alpha", "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	if _, err := m.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22", 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "hunter22" {
		t.Fatal("hash equals plaintext")
	}
	if !CheckPassword(hash, "hunter22") {
		t.Fatal("expected password to match")
	}
	if CheckPassword(hash, "hunter23") {
		t.Fatal("expected wrong password to fail")
	}
}
