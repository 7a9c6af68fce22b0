package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/printcost-auth/internal/user"
)

// TokenService signs and verifies session tokens.
// Implementations include JWTService (HS256) and PasetoService (PASETO v4.local).
type TokenService interface {
	CreateToken(claims SessionClaims) (string, error)
	VerifyToken(tokenStr string) (*SessionClaims, error)
}

// UserRepository is the user half of the credential store.
type UserRepository interface {
	Create(ctx context.Context, name, email, passwordHash string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	MarkEmailAsVerified(ctx context.Context, userID uuid.UUID) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// OneTimeTokenRepository stores one kind of one-time token. Raw tokens are
// hashed by the repository before they touch storage.
type OneTimeTokenRepository interface {
	Store(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	Get(ctx context.Context, token string) (*OneTimeToken, error)
	// Consume marks the token used only if it is still unused. It returns
	// ErrTokenConsumed when another caller got there first.
	Consume(ctx context.Context, id uuid.UUID, at time.Time) error
	InvalidateUnused(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// SessionRepository stores session rows.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	// Revoke marks a live session revoked. It returns ErrSessionNotFound when
	// no unrevoked row matched.
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// EmailService defines the interface for email operations
type EmailService interface {
	SendVerificationEmail(ctx context.Context, toEmail, name, token string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, name, token string) error
}
