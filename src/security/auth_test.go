package security

import (
	"testing"
	"time"

	"github.com/username/portfoliodesk/backend/src/config"
)

func testConfig() {
	config.Cfg = &config.AppConfig{
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
	}
}

func TestHashAndComparePassword(t *testing.T) {
	svc := NewAuthService("test-secret-test-secret-test-secret!")

	hash, err := svc.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter2hunter2" {
		t.Fatal("password stored in the clear")
	}
	if err := svc.CompareHashAndPassword(hash, "hunter2hunter2"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := svc.CompareHashAndPassword(hash, "wrongwrongwrong"); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	testConfig()
	svc := NewAuthService("test-secret-test-secret-test-secret!")

	token, err := svc.GenerateToken("42")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	sub, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if sub != "42" {
		t.Errorf("sub = %q, want %q", sub, "42")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	testConfig()
	issuer := NewAuthService("issuer-secret-issuer-secret-issuer!!")
	verifier := NewAuthService("other-secret-other-secret-other-sec!")

	token, err := issuer.GenerateToken("42")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Error("token signed with a different secret was accepted")
	}
}

func TestOpaqueTokensAreUnique(t *testing.T) {
	svc := NewAuthService("test-secret-test-secret-test-secret!")
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		tok, err := svc.GenerateOpaqueToken()
		if err != nil {
			t.Fatalf("GenerateOpaqueToken: %v", err)
		}
		if seen[tok] {
			t.Fatal("duplicate opaque token generated")
		}
		seen[tok] = true
	}
}
