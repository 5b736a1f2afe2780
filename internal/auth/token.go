// Package auth implements the opaque bearer-token scheme used to bind a
// user identity to HTTP and MCP requests.
//
// Tokens are not JWTs: they are a minimal HMAC-signed envelope —
// base64url(JSON{user_id, iat}) + "." + first16(hex(HMAC-SHA256(secret, encoded))) —
// chosen because the service has no notion of scopes, audiences, or
// expiry beyond what the caller wants to track; it binds a user_id and
// nothing else.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidToken is returned when a token fails signature verification or
// cannot be decoded.
var ErrInvalidToken = errors.New("auth: invalid token")

const signatureLen = 16 // hex chars, i.e. 8 bytes of the HMAC digest

// TokenManager issues and validates opaque bearer tokens signed with a
// single shared secret, loaded once at startup (spec section 9,
// "process-wide configuration").
type TokenManager struct {
	secret []byte
}

// NewTokenManager builds a TokenManager from AUTH_SECRET. The secret must
// be non-empty; an empty secret would make every token trivially forgeable.
func NewTokenManager(secret string) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: AUTH_SECRET must not be empty")
	}
	return &TokenManager{secret: []byte(secret)}, nil
}

type tokenPayload struct {
	UserID string `json:"user_id"`
	IAT    int64  `json:"iat"`
}

// sign computes the first 16 hex characters of HMAC-SHA256(secret, encoded).
func (m *TokenManager) sign(encoded string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(encoded))
	digest := mac.Sum(nil)
	return hex.EncodeToString(digest)[:signatureLen]
}

// Generate creates a signed bearer token binding userID, stamped with the
// current time. userID must be non-empty.
func (m *TokenManager) Generate(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("auth: generate: user_id must not be empty")
	}
	raw, err := json.Marshal(tokenPayload{UserID: userID, IAT: time.Now().Unix()})
	if err != nil {
		return "", fmt.Errorf("auth: generate: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return encoded + "." + m.sign(encoded), nil
}

// Decode validates a token's signature and returns the embedded user_id.
// Returns ErrInvalidToken for any malformed or mis-signed token — it never
// distinguishes why a token was rejected, to avoid leaking structure to an
// attacker probing the scheme.
func (m *TokenManager) Decode(token string) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || len(sig) != signatureLen {
		return "", ErrInvalidToken
	}

	expected := m.sign(encoded)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return "", ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidToken
	}

	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", ErrInvalidToken
	}
	if payload.UserID == "" {
		return "", ErrInvalidToken
	}
	return payload.UserID, nil
}
