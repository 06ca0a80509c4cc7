package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// HS256 token generator for the authenticated Engine API endpoint. The engine
// accepts short-lived bearer tokens signed with the shared hex-encoded secret.

// tokenTTL is kept short; engines reject tokens with iat too far in the past.
const tokenTTL = 60 * time.Second

type header struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

type claims struct {
	IssuedAt  int64 `json:"iat"`
	ExpiresAt int64 `json:"exp"`
}

// GenerateToken creates a bearer token from a hex-encoded secret.
func GenerateToken(hexSecret string) (string, error) {
	secret, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexSecret), "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to parse hex secret: %w", err)
	}

	headerJSON, err := json.Marshal(header{Algorithm: "HS256", Type: "JWT"})
	if err != nil {
		return "", err
	}

	now := time.Now()
	claimsJSON, err := json.Marshal(claims{
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(tokenTTL).Unix(),
	})
	if err != nil {
		return "", err
	}

	signingInput := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	return signingInput + "." + sign(signingInput, secret), nil
}

// ParseHexKey extracts a hex key from secret file content.
func ParseHexKey(content string) string {
	return strings.TrimSpace(content)
}

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func sign(data string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(data))
	return base64URLEncode(h.Sum(nil))
}
