package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/go-chat-auth/internal/models"
	"github.com/pribylovaa/go-chat-auth/internal/storage"
)

const insertRefreshToken = `
	INSERT INTO refresh_tokens(user_id, token_hash, expires_at, created_at)
	VALUES ($1, $2, $3, COALESCE($4, now()))
	RETURNING id, created_at
`

// SaveRefreshToken сохраняет запись refresh-токена и проставляет ей ID и CreatedAt.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	if err := insertToken(ctx, s.db, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokensByUser возвращает все записи пользователя в порядке создания.
func (s *Storage) RefreshTokensByUser(ctx context.Context, userID int64) ([]models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokensByUser"

	query := `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY id
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tokens, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		var t models.RefreshToken
		err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokens, nil
}

// DeleteRefreshToken удаляет запись по id, user_id и хэшу.
func (s *Storage) DeleteRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.DeleteRefreshToken"

	query := `
		DELETE FROM refresh_tokens
		WHERE id = $1 AND user_id = $2 AND token_hash = $3
	`

	cmdTag, err := s.db.Exec(ctx, query, token.ID, token.UserID, token.TokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ReplaceRefreshToken в одной транзакции удаляет old и вставляет next.
// Если old уже удалена конкурентом, транзакция откатывается с ErrNotFound.
func (s *Storage) ReplaceRefreshToken(ctx context.Context, old, next *models.RefreshToken) error {
	const op = "storage.postgres.ReplaceRefreshToken"

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	del := `
		DELETE FROM refresh_tokens
		WHERE id = $1 AND user_id = $2 AND token_hash = $3
	`

	cmdTag, err := tx.Exec(ctx, del, old.ID, old.UserID, old.TokenHash)
	if err != nil {
		return fmt.Errorf("%s: delete: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if err := insertToken(ctx, tx, next); err != nil {
		return fmt.Errorf("%s: insert: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// DeleteUserRefreshTokens удаляет все записи пользователя.
func (s *Storage) DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.postgres.DeleteUserRefreshTokens"

	cmdTag, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

// DeleteExpiredTokens удаляет все просроченные токены.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredTokens"

	query := `
        DELETE FROM refresh_tokens
        WHERE expires_at <= $1
    `

	cmdTag, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertToken(ctx context.Context, q queryRower, token *models.RefreshToken) error {
	err := q.QueryRow(ctx, insertRefreshToken,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		nullTime(token.CreatedAt),
	).Scan(&token.ID, &token.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}

		return err
	}

	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
