package auth

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomTokenGenerator(t *testing.T) {
	var g RandomTokenGenerator

	a, err := g.NewToken()
	require.NoError(t, err)
	b, err := g.NewToken()
	require.NoError(t, err)

	assert.Len(t, a, 2*opaqueTokenBytes)
	assert.NotEqual(t, a, b)

	_, err = hex.DecodeString(a)
	assert.NoError(t, err)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, hashToken("abc"), hashToken("abc"))
	assert.NotEqual(t, hashToken("abc"), hashToken("abd"))
	assert.Len(t, hashToken("abc"), 64)
}

func TestOneTimeToken_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := &OneTimeToken{ExpiresAt: now}

	assert.False(t, tok.IsExpired(now.Add(-time.Nanosecond)))
	assert.True(t, tok.IsExpired(now))
	assert.True(t, tok.IsExpired(now.Add(time.Second)))
}

func TestSession_IsValid(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, s.IsValid(now))

	revoked := now
	s.RevokedAt = &revoked
	assert.False(t, s.IsValid(now))

	s.RevokedAt = nil
	assert.False(t, s.IsValid(now.Add(time.Minute)))
}

func TestMemoryTokenRepository_ConsumeOnce(t *testing.T) {
	repo := NewMemoryTokenRepository()
	ctx := t.Context()
	userID := newUserID()

	require.NoError(t, repo.Store(ctx, userID, "raw", time.Now().Add(time.Hour)))

	tok, err := repo.Get(ctx, "raw")
	require.NoError(t, err)
	assert.Equal(t, hashToken("raw"), tok.TokenHash)

	require.NoError(t, repo.Consume(ctx, tok.ID, time.Now()))
	assert.ErrorIs(t, repo.Consume(ctx, tok.ID, time.Now()), ErrTokenConsumed)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
