package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTokenRepository is the in-process OneTimeTokenRepository.
type MemoryTokenRepository struct {
	mu     sync.Mutex
	byHash map[string]*OneTimeToken
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{byHash: map[string]*OneTimeToken{}}
}

func (r *MemoryTokenRepository) Store(_ context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := hashToken(token)
	r.byHash[h] = &OneTimeToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: h,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (r *MemoryTokenRepository) Get(_ context.Context, token string) (*OneTimeToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[hashToken(token)]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryTokenRepository) Consume(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.byHash {
		if t.ID != id {
			continue
		}
		if t.UsedAt != nil {
			return ErrTokenConsumed
		}
		used := at
		t.UsedAt = &used
		return nil
	}
	return ErrTokenConsumed
}

func (r *MemoryTokenRepository) InvalidateUnused(_ context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.byHash {
		if t.UserID == userID && t.UsedAt == nil {
			used := at
			t.UsedAt = &used
		}
	}
	return nil
}

// Len reports how many tokens were ever stored.
func (r *MemoryTokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHash)
}
