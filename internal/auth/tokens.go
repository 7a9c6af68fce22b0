package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// opaqueTokenBytes is the entropy of verification and reset tokens.
const opaqueTokenBytes = 48

// TokenGenerator produces opaque one-time tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

// RandomTokenGenerator returns hex-encoded crypto/rand bytes.
type RandomTokenGenerator struct{}

func (RandomTokenGenerator) NewToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// hashToken is the storage form of an opaque token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
