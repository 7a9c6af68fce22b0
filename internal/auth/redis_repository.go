package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// revokeScript sets revoked_at only on an existing, unrevoked session hash.
// Returns 1 when this call revoked it.
var revokeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
return redis.call("HSETNX", KEYS[1], "revoked_at", ARGV[1])
`)

// RedisSessionRepository handles session persistence in Redis.
// Keys expire with the session, so no cleanup job is needed.
type RedisSessionRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisSessionRepository(client redis.UniversalClient) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, now: time.Now}
}

// getSessionKey generates the Redis key for a session
func getSessionKey(id uuid.UUID) string {
	return fmt.Sprintf("session:%s", id.String())
}

// getUserSessionsKey generates the Redis key for a user's session set
func getUserSessionsKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_sessions:%s", userID.String())
}

// Create stores a session hash with a TTL matching its expiry
func (r *RedisSessionRepository) Create(ctx context.Context, s *Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("session expiration time is in the past")
	}

	sessionKey := getSessionKey(s.ID)
	userSessionsKey := getUserSessionsKey(s.UserID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, sessionKey, map[string]interface{}{
		"user_id":    s.UserID.String(),
		"expires_at": s.ExpiresAt.UnixNano(),
		"created_at": s.CreatedAt.UnixNano(),
		"ip":         s.IP,
		"user_agent": s.UserAgent,
	})
	pipe.Expire(ctx, sessionKey, ttl)

	pipe.SAdd(ctx, userSessionsKey, s.ID.String())
	// Sessions share one TTL, so the newest one outlives the rest.
	pipe.Expire(ctx, userSessionsKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// Get loads a session by id
func (r *RedisSessionRepository) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	data, err := r.client.HGetAll(ctx, getSessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrSessionNotFound
	}

	userID, err := uuid.Parse(data["user_id"])
	if err != nil {
		return nil, fmt.Errorf("malformed session %s: %w", id, err)
	}

	expiresAt, err := parseUnixNano(data["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("malformed session %s: %w", id, err)
	}

	createdAt, _ := parseUnixNano(data["created_at"])

	s := &Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: expiresAt,
		IP:        data["ip"],
		UserAgent: data["user_agent"],
		CreatedAt: createdAt,
	}

	if raw, ok := data["revoked_at"]; ok {
		revokedAt, err := parseUnixNano(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed session %s: %w", id, err)
		}
		s.RevokedAt = &revokedAt
	}

	return s, nil
}

// Revoke marks a live session revoked. Revoked hashes are kept until they
// expire so a replayed token keeps failing with the same result.
func (r *RedisSessionRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	n, err := revokeScript.Run(ctx, r.client, []string{getSessionKey(id)}, at.UnixNano()).Int()
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if n == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// RevokeAllForUser revokes every session for a user
func (r *RedisSessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error {
	ids, err := r.client.SMembers(ctx, getUserSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to get user sessions: %w", err)
	}

	if len(ids) == 0 {
		return nil
	}

	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if err := r.Revoke(ctx, id, at); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return fmt.Errorf("failed to revoke all user sessions: %w", err)
		}
	}

	return nil
}

func parseUnixNano(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}
