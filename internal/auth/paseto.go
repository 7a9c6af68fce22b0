package auth

import (
	"errors"
	"fmt"

	"aidanwoods.dev/go-paseto"
)

// PasetoService handles session tokens as PASETO v4.local
// (symmetric encryption with XChaCha20 and a BLAKE2b MAC).
type PasetoService struct {
	symmetricKey paseto.V4SymmetricKey
}

func NewPasetoService(symmetricKey []byte) (*PasetoService, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoService{symmetricKey: key}, nil
}

func (s *PasetoService) CreateToken(c SessionClaims) (string, error) {
	token := paseto.NewToken()
	token.SetIssuedAt(c.IssuedAt)
	token.SetNotBefore(c.IssuedAt)
	token.SetExpiration(c.ExpiresAt)
	token.SetSubject(c.UserID)
	token.SetJti(c.SessionID)
	token.SetString("sid", c.SessionID)
	token.SetString("email", c.Email)

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

// VerifyToken decrypts the token and checks its expiry.
func (s *PasetoService) VerifyToken(tokenStr string) (*SessionClaims, error) {
	parser := paseto.NewParser()

	token, err := parser.ParseV4Local(s.symmetricKey, tokenStr, nil)
	if err != nil {
		return nil, errors.Join(ErrInvalidSessionToken, err)
	}

	userID, err := token.GetSubject()
	if err != nil {
		return nil, ErrInvalidSessionToken
	}

	sessionID, err := token.GetString("sid")
	if err != nil {
		return nil, ErrInvalidSessionToken
	}

	email, err := token.GetString("email")
	if err != nil {
		return nil, ErrInvalidSessionToken
	}

	issuedAt, err := token.GetIssuedAt()
	if err != nil {
		return nil, ErrInvalidSessionToken
	}

	expiresAt, err := token.GetExpiration()
	if err != nil {
		return nil, ErrInvalidSessionToken
	}

	return &SessionClaims{
		UserID:    userID,
		SessionID: sessionID,
		Email:     email,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}
