package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/printcost-auth/internal/database"
)

func newMockDB(t *testing.T) (sqlmock.Sqlmock, func() *TokenRepository, func() *SessionStore) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db := database.NewBunDB(sqlDB)
	return mock,
		func() *TokenRepository { return NewPasswordResetTokenRepository(db) },
		func() *SessionStore { return NewSessionStore(db) }
}

func TestTokenRepository_GetByHash(t *testing.T) {
	mock, resets, _ := newMockDB(t)
	repo := resets()

	id, userID := uuid.New(), uuid.New()
	expires := time.Now().Add(time.Hour).UTC()

	mock.ExpectQuery(`SELECT .* FROM password_reset_tokens AS t WHERE \(t\.token_hash = '` + hashToken("raw") + `'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}).
			AddRow(id.String(), userID.String(), hashToken("raw"), expires, nil, time.Now()))

	tok, err := repo.Get(context.Background(), "raw")
	require.NoError(t, err)
	assert.Equal(t, id, tok.ID)
	assert.Equal(t, userID, tok.UserID)
	assert.False(t, tok.IsUsed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_GetMissing(t *testing.T) {
	mock, resets, _ := newMockDB(t)

	mock.ExpectQuery(`SELECT .* FROM password_reset_tokens AS t`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := resets().Get(context.Background(), "raw")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenRepository_ConsumeIsConditional(t *testing.T) {
	mock, resets, _ := newMockDB(t)
	repo := resets()
	id := uuid.New()

	mock.ExpectExec(`UPDATE password_reset_tokens AS t SET used_at = .* WHERE \(t\.id = '` + id.String() + `'\) AND \(t\.used_at IS NULL\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE password_reset_tokens AS t SET used_at = .* AND \(t\.used_at IS NULL\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Consume(context.Background(), id, time.Now()))
	assert.ErrorIs(t, repo.Consume(context.Background(), id, time.Now()), ErrTokenConsumed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_InvalidateUnused(t *testing.T) {
	mock, resets, _ := newMockDB(t)
	userID := uuid.New()

	mock.ExpectExec(`UPDATE password_reset_tokens AS t SET used_at = .* WHERE \(t\.user_id = '` + userID.String() + `'\) AND \(t\.used_at IS NULL\)`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, resets().InvalidateUnused(context.Background(), userID, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerificationTokenRepository_UsesOwnTable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	repo := NewVerificationTokenRepository(database.NewBunDB(sqlDB))

	mock.ExpectExec(`UPDATE email_verification_tokens AS t`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Consume(context.Background(), uuid.New(), time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
