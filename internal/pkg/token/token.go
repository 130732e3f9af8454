package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ByteLength is the entropy of a session token in bytes (256 bits).
const ByteLength = 32

// NewSessionToken generates a cryptographically random 64-character hex token.
// It carries no user or time information.
func NewSessionToken() (string, error) {
	b := make([]byte, ByteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
