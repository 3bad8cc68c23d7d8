package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// TokenPrefix identifies fleetdesk session tokens
	TokenPrefix = "fdk_"
	// TokenLength is the number of random bytes (32 bytes = 256 bits)
	TokenLength = 32
	// displayPrefixLen is how many encoded characters are kept for display
	displayPrefixLen = 8
)

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenNotFound  = errors.New("token not found")
)

// IssuedToken is a freshly generated token. Plaintext is shown once and never stored.
type IssuedToken struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// IssueToken creates a new session token.
// Format: fdk_<base64url(32 random bytes)>
func IssueToken() (IssuedToken, error) {
	raw := make([]byte, TokenLength)
	if _, err := rand.Read(raw); err != nil {
		return IssuedToken{}, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plaintext := TokenPrefix + base64.RawURLEncoding.EncodeToString(raw)
	return IssuedToken{
		Plaintext: plaintext,
		Hash:      HashToken(plaintext),
		Prefix:    DisplayPrefix(plaintext),
	}, nil
}

// HashToken computes the SHA256 hash used to look a token up.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateTokenFormat checks the prefix and the base64url body.
func ValidateTokenFormat(token string) error {
	body, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok {
		return fmt.Errorf("%w: must start with %q", ErrMalformedToken, TokenPrefix)
	}
	if body == "" {
		return fmt.Errorf("%w: empty token body", ErrMalformedToken)
	}
	if _, err := base64.RawURLEncoding.DecodeString(body); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return nil
}

// DisplayPrefix returns the identifying prefix of a token, or "" when it is not a fleetdesk token.
func DisplayPrefix(token string) string {
	body, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok {
		return ""
	}
	if len(body) > displayPrefixLen {
		body = body[:displayPrefixLen]
	}
	return TokenPrefix + body
}

// ParseBearer extracts and validates the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: expected Bearer scheme", ErrMalformedToken)
	}
	token = strings.TrimSpace(token)
	if err := ValidateTokenFormat(token); err != nil {
		return "", err
	}
	return token, nil
}
