package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. It backs STORE_DRIVER=memory
// and the service tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*User
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    map[uuid.UUID]*User{},
		byEmail: map[string]uuid.UUID{},
		now:     time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, name, email, passwordHash string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = NormalizeEmail(email)
	if _, ok := r.byEmail[email]; ok {
		return nil, ErrDuplicateEmail
	}

	now := r.now()
	u := &User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[u.ID] = u
	r.byEmail[email] = u.ID

	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) MarkEmailAsVerified(_ context.Context, userID uuid.UUID) error {
	return r.update(userID, func(u *User) { u.EmailVerified = true })
}

func (r *MemoryRepository) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	return r.update(userID, func(u *User) { u.PasswordHash = passwordHash })
}

func (r *MemoryRepository) update(userID uuid.UUID, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = r.now()
	return nil
}
