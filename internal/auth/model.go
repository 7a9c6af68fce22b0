package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/printcost-auth/internal/user"
)

// OneTimeToken is an email verification or password reset token row.
// Only the SHA-256 of the raw token is stored.
type OneTimeToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (t *OneTimeToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsExpired reports whether now is at or past the expiry.
func (t *OneTimeToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Session is the server-side record a session token points at.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	RevokedAt *time.Time
	IP        string
	UserAgent string
	CreatedAt time.Time
}

func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsValid reports whether the session may still authenticate requests.
func (s *Session) IsValid(now time.Time) bool {
	return !s.IsRevoked() && !s.IsExpired(now)
}

// SessionClaims is what a signed session token carries.
type SessionClaims struct {
	UserID    string
	SessionID string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal identifies the caller of an authenticated request.
type Principal struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Email     string
}

// ClientInfo is recorded on the session row at login.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User      user.Public `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}
