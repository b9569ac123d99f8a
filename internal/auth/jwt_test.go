package auth

import (
	"testing"
	"time"

	"crowdship-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

func mintToken(t *testing.T, secret string, claims Claims, method jwt.SigningMethod) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func baseClaims(now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "issuer",
			Audience:  jwt.ClaimStrings{"aud"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		UserID: "user-1",
		Role:   "user",
	}
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "issuer", JWTAudience: "aud"})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok := mintToken(t, "secret", baseClaims(now), jwt.SigningMethodHS256)

	claims, err := m.Verify(tok, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyUsesProvidedClock(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})

	// Long expired by the wall clock; only the supplied time may decide.
	past := time.Unix(1500000000, 0).UTC()
	tok := mintToken(t, "secret", baseClaims(past), jwt.SigningMethodHS256)

	if _, err := m.Verify(tok, past.Add(time.Minute)); err != nil {
		t.Fatalf("verify at token time: %v", err)
	}
	if _, err := m.Verify(tok, past.Add(16*time.Minute)); err == nil {
		t.Fatalf("expected expiry at the later clock")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})

	now := time.Unix(1700000000, 0).UTC()
	tok := mintToken(t, "secret", baseClaims(now), jwt.SigningMethodHS256)

	if _, err := m.Verify(tok, now.Add(16*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})

	now := time.Unix(1700000000, 0).UTC()
	tok := mintToken(t, "other-secret", baseClaims(now), jwt.SigningMethodHS256)

	if _, err := m.Verify(tok, now); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})

	now := time.Unix(1700000000, 0).UTC()
	claims := baseClaims(now)
	claims.UserID = ""
	tok := mintToken(t, "secret", claims, jwt.SigningMethodHS256)

	if _, err := m.Verify(tok, now); err == nil {
		t.Fatalf("expected missing user_id error")
	}
}
