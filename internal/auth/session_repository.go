package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/printcost-auth/internal/database"
)

// SessionStore persists sessions in Postgres.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (r *SessionStore) Create(ctx context.Context, s *Session) error {
	row := &database.Session{
		ID:        s.ID,
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt,
		IP:        s.IP,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
	}

	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

func (r *SessionStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := new(database.Session)
	err := r.db.NewSelect().
		Model(row).
		Where("s.id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return mapDBSessionToModel(row), nil
}

func (r *SessionStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.Session)(nil)).
		Set("revoked_at = ?", at).
		Where("s.id = ?", id).
		Where("s.revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (r *SessionStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*database.Session)(nil)).
		Set("revoked_at = ?", at).
		Where("s.user_id = ?", userID).
		Where("s.revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to revoke all user sessions: %w", err)
	}

	return nil
}

// mapDBSessionToModel converts database model to domain model
func mapDBSessionToModel(row *database.Session) *Session {
	return &Session{
		ID:        row.ID,
		UserID:    row.UserID,
		ExpiresAt: row.ExpiresAt,
		RevokedAt: row.RevokedAt,
		IP:        row.IP,
		UserAgent: row.UserAgent,
		CreatedAt: row.CreatedAt,
	}
}
