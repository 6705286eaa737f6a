package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
)

// RefreshTokensStore handles refresh token record persistence, keyed by
// token hash.
type RefreshTokensStore struct {
	db *sql.DB
}

// NewRefreshTokensStore creates a new refresh tokens store.
func NewRefreshTokensStore(db *sql.DB) *RefreshTokensStore {
	return &RefreshTokensStore{db: db}
}

// Save creates a new refresh token record.
func (s *RefreshTokensStore) Save(ctx context.Context, rec *domain.RefreshRecord) error {
	query := `
		INSERT INTO refresh_tokens (token_hash, session_id, account_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.TokenHash, rec.SessionID, rec.AccountID, rec.CreatedAt, rec.ExpiresAt,
	)
	return err
}

// GetByHash retrieves a refresh token record by token hash.
func (s *RefreshTokensStore) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshRecord, error) {
	query := `
		SELECT token_hash, session_id, account_id, created_at, expires_at, revoked_at, last_seen_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	rec := &domain.RefreshRecord{}
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&rec.TokenHash, &rec.SessionID, &rec.AccountID,
		&rec.CreatedAt, &rec.ExpiresAt, &rec.RevokedAt, &rec.LastSeenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Touch updates the last_seen_at timestamp.
func (s *RefreshTokensStore) Touch(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE refresh_tokens
		SET last_seen_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	_, err := s.db.ExecContext(ctx, query, tokenHash)
	return err
}

// Revoke marks the record revoked. Unknown tokens are a no-op.
func (s *RefreshTokensStore) Revoke(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	_, err := s.db.ExecContext(ctx, query, tokenHash)
	return err
}

// RevokeAllForAccount revokes every live record for an account.
func (s *RefreshTokensStore) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE account_id = $1 AND revoked_at IS NULL
	`
	_, err := s.db.ExecContext(ctx, query, accountID)
	return err
}

// DeleteExpired deletes records expired or revoked longer ago than olderThan.
func (s *RefreshTokensStore) DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
