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

const (
	emailVerificationTable = "email_verification_tokens"
	passwordResetTable     = "password_reset_tokens"
)

// TokenRepository persists one kind of one-time token in Postgres.
type TokenRepository struct {
	db    *bun.DB
	table string
}

func NewVerificationTokenRepository(db *bun.DB) *TokenRepository {
	return &TokenRepository{db: db, table: emailVerificationTable}
}

func NewPasswordResetTokenRepository(db *bun.DB) *TokenRepository {
	return &TokenRepository{db: db, table: passwordResetTable}
}

// tableExpr keeps the "t" alias declared on database.OneTimeToken.
func (r *TokenRepository) tableExpr() string {
	return r.table + " AS t"
}

// Store saves the hash of token for userID.
func (r *TokenRepository) Store(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	row := &database.OneTimeToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}

	_, err := r.db.NewInsert().
		Model(row).
		ModelTableExpr(r.tableExpr()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store %s row: %w", r.table, err)
	}

	return nil
}

// Get looks a token up by its raw value.
func (r *TokenRepository) Get(ctx context.Context, token string) (*OneTimeToken, error) {
	row := new(database.OneTimeToken)
	err := r.db.NewSelect().
		Model(row).
		ModelTableExpr(r.tableExpr()).
		Where("t.token_hash = ?", hashToken(token)).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get %s row: %w", r.table, err)
	}

	return mapDBTokenToModel(row), nil
}

// Consume is a single conditional update so two concurrent callers cannot
// both use the same token.
func (r *TokenRepository) Consume(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.OneTimeToken)(nil)).
		ModelTableExpr(r.tableExpr()).
		Set("used_at = ?", at).
		Where("t.id = ?", id).
		Where("t.used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume %s row: %w", r.table, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrTokenConsumed
	}

	return nil
}

// InvalidateUnused marks every outstanding token of the user as used.
func (r *TokenRepository) InvalidateUnused(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*database.OneTimeToken)(nil)).
		ModelTableExpr(r.tableExpr()).
		Set("used_at = ?", at).
		Where("t.user_id = ?", userID).
		Where("t.used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to invalidate %s rows: %w", r.table, err)
	}

	return nil
}

func mapDBTokenToModel(row *database.OneTimeToken) *OneTimeToken {
	return &OneTimeToken{
		ID:        row.ID,
		UserID:    row.UserID,
		TokenHash: row.TokenHash,
		ExpiresAt: row.ExpiresAt,
		UsedAt:    row.UsedAt,
		CreatedAt: row.CreatedAt,
	}
}
