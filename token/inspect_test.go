package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return raw
}

func TestInspectReadsRegisteredClaims(t *testing.T) {
	issued := time.Now().Add(-time.Minute).Truncate(time.Second)
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signedToken(t, jwt.RegisteredClaims{
		Subject:   "tech-104",
		Issuer:    "lims-core",
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	claims, err := Inspect(raw)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if claims.Subject != "tech-104" {
		t.Fatalf("expected subject tech-104, got %q", claims.Subject)
	}
	if claims.Issuer != "lims-core" {
		t.Fatalf("expected issuer lims-core, got %q", claims.Issuer)
	}
	if !claims.IssuedAt.Equal(issued) {
		t.Fatalf("iat mismatch: %v != %v", claims.IssuedAt, issued)
	}
	if !claims.ExpiresAt.Equal(expires) {
		t.Fatalf("exp mismatch: %v != %v", claims.ExpiresAt, expires)
	}
}

func TestInspectMalformedToken(t *testing.T) {
	for _, raw := range []string{"", "not.a.jwt", "a.b", "...."} {
		if _, err := Inspect(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("input %q: expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestInspectDoesNotVerifySignature(t *testing.T) {
	raw := signedToken(t, jwt.RegisteredClaims{Subject: "tech-104"})

	// Break the signature segment; the structural decode must still work.
	broken := raw[:len(raw)-4] + "AAAA"
	claims, err := Inspect(broken)
	if err != nil {
		t.Fatalf("inspect with broken signature: %v", err)
	}
	if claims.Subject != "tech-104" {
		t.Fatalf("expected subject tech-104, got %q", claims.Subject)
	}
}

func TestExpiresWithin(t *testing.T) {
	soon := signedToken(t, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * time.Second)),
	})
	claims, err := Inspect(soon)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !claims.ExpiresWithin(time.Minute) {
		t.Fatal("token expiring in 30s must report expiring within 1m")
	}
	if claims.ExpiresWithin(time.Second) {
		t.Fatal("token expiring in 30s must not report expiring within 1s")
	}
	if claims.Expired() {
		t.Fatal("token expiring in 30s is not expired yet")
	}
}

func TestExpiredToken(t *testing.T) {
	past := signedToken(t, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	claims, err := Inspect(past)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !claims.Expired() {
		t.Fatal("token with past exp must report expired")
	}
}

func TestNoExpClaimNeverReportsExpiring(t *testing.T) {
	raw := signedToken(t, jwt.RegisteredClaims{Subject: "tech-104"})
	claims, err := Inspect(raw)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if claims.ExpiresWithin(24 * time.Hour) {
		t.Fatal("token without exp must never report as expiring")
	}
	if claims.Expired() {
		t.Fatal("token without exp must never report as expired")
	}
}
