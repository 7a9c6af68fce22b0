package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisSessions(t *testing.T) (*RedisSessionRepository, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionRepository(client), s
}

func newSession(userID uuid.UUID) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: now.Add(time.Hour),
		IP:        "203.0.113.7",
		UserAgent: "curl",
		CreatedAt: now,
	}
}

func TestRedisSessionRepository_CreateGet(t *testing.T) {
	repo, mr := newRedisSessions(t)
	ctx := context.Background()
	in := newSession(uuid.New())

	require.NoError(t, repo.Create(ctx, in))

	out, err := repo.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.UserID, out.UserID)
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))
	assert.Equal(t, "curl", out.UserAgent)
	assert.False(t, out.IsRevoked())

	assert.Greater(t, mr.TTL(getSessionKey(in.ID)), time.Duration(0))
	assert.True(t, mr.Exists(getUserSessionsKey(in.UserID)))

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionRepository_RevokeOnce(t *testing.T) {
	repo, _ := newRedisSessions(t)
	ctx := context.Background()
	s := newSession(uuid.New())
	require.NoError(t, repo.Create(ctx, s))

	require.NoError(t, repo.Revoke(ctx, s.ID, time.Now()))
	assert.ErrorIs(t, repo.Revoke(ctx, s.ID, time.Now()), ErrSessionNotFound)
	assert.ErrorIs(t, repo.Revoke(ctx, uuid.New(), time.Now()), ErrSessionNotFound)

	out, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, out.IsRevoked())
}

func TestRedisSessionRepository_RevokeAllForUser(t *testing.T) {
	repo, _ := newRedisSessions(t)
	ctx := context.Background()
	userID := uuid.New()

	a, b, other := newSession(userID), newSession(userID), newSession(uuid.New())
	for _, s := range []*Session{a, b, other} {
		require.NoError(t, repo.Create(ctx, s))
	}
	require.NoError(t, repo.Revoke(ctx, a.ID, time.Now()))

	require.NoError(t, repo.RevokeAllForUser(ctx, userID, time.Now()))

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		s, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, s.IsRevoked())
	}

	s, err := repo.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, s.IsRevoked())
}

func TestRedisSessionRepository_RejectsPastExpiry(t *testing.T) {
	repo, _ := newRedisSessions(t)
	s := newSession(uuid.New())
	s.ExpiresAt = time.Now().Add(-time.Second)

	assert.Error(t, repo.Create(context.Background(), s))
}
