package jwt

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

const testSecret = "0x5c7e2e9a0b3f4d6c8e1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f70"

func TestGenerateTokenShape(t *testing.T) {
	token, err := GenerateToken(testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("header not base64url: %v", err)
	}
	var h struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		t.Fatal(err)
	}
	if h.Alg != "HS256" || h.Typ != "JWT" {
		t.Fatalf("header = %+v, want HS256/JWT", h)
	}
}

func TestGenerateTokenClaims(t *testing.T) {
	before := time.Now().Unix()
	token, err := GenerateToken(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	after := time.Now().Unix()

	parts := strings.Split(token, ".")
	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	var c struct {
		IssuedAt  int64 `json:"iat"`
		ExpiresAt int64 `json:"exp"`
	}
	if err := json.Unmarshal(claimsJSON, &c); err != nil {
		t.Fatal(err)
	}
	if c.IssuedAt < before || c.IssuedAt > after {
		t.Fatalf("iat = %d, want within [%d, %d]", c.IssuedAt, before, after)
	}
	if c.ExpiresAt != c.IssuedAt+60 {
		t.Fatalf("exp = %d, want iat+60", c.ExpiresAt)
	}
}

func TestGenerateTokenAcceptsUnprefixedSecret(t *testing.T) {
	if _, err := GenerateToken(strings.TrimPrefix(testSecret, "0x")); err != nil {
		t.Fatalf("unprefixed secret rejected: %v", err)
	}
}

func TestGenerateTokenRejectsBadSecret(t *testing.T) {
	if _, err := GenerateToken("not-hex"); err == nil {
		t.Fatal("expected error for non-hex secret")
	}
}
