// refresh - серверное хранилище refresh-токенов поверх storage.RefreshTokenStorage.
//
// Сырой токен никогда не сохраняется: запись хранит bcrypt от
// base64url(sha256(raw)). Предварительный SHA-256 укладывает JWT любой
// длины в 72-байтовое окно bcrypt. Прямого индекса по токену нет,
// поэтому поиск идёт по записям пользователя с проверкой хэша.
package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/go-chat-auth/internal/models"
	"github.com/pribylovaa/go-chat-auth/internal/password"
	"github.com/pribylovaa/go-chat-auth/internal/storage"
)

type Store struct {
	backend storage.RefreshTokenStorage
	hasher  *password.Hasher
	now     func() time.Time
}

// New создает Store над backend с заданным хэшером.
func New(backend storage.RefreshTokenStorage, hasher *password.Hasher) *Store {
	return &Store{backend: backend, hasher: hasher, now: time.Now}
}

// digest - base64url(sha256(raw)), вход для bcrypt.
func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *Store) record(userID int64, raw string, expiresAt time.Time) (*models.RefreshToken, error) {
	hash, err := s.hasher.Hash(digest(raw))
	if err != nil {
		return nil, err
	}

	return &models.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: s.now().UTC(),
	}, nil
}

// Create хэширует raw и сохраняет запись {userID, hash, expiresAt}.
func (s *Store) Create(ctx context.Context, userID int64, raw string, expiresAt time.Time) (*models.RefreshToken, error) {
	const op = "refresh.Create"

	rec, err := s.record(userID, raw, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.backend.SaveRefreshToken(ctx, rec); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// Find возвращает живую запись пользователя, хэш которой совпадает с raw.
// storage.ErrNotFound - если совпадения нет или запись уже просрочена.
func (s *Store) Find(ctx context.Context, raw string, userID int64) (*models.RefreshToken, error) {
	const op = "refresh.Find"

	records, err := s.backend.RefreshTokensByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d := digest(raw)
	now := s.now()

	for i := range records {
		rec := &records[i]
		if rec.Expired(now) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if s.hasher.Verify(d, rec.TokenHash) {
			return rec, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// Delete удаляет запись, соответствующую raw.
// Отсутствие записи не ошибка: повторный logout проходит молча.
func (s *Store) Delete(ctx context.Context, raw string, userID int64) error {
	const op = "refresh.Delete"

	rec, err := s.Find(ctx, raw, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.backend.DeleteRefreshToken(ctx, rec)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Запись удалил конкурентный запрос.
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteAll удаляет все записи пользователя и возвращает их число.
func (s *Store) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	const op = "refresh.DeleteAll"

	n, err := s.backend.DeleteUserRefreshTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// Rotate атомарно заменяет запись old записью для newRaw.
// storage.ErrNotFound - old уже удалена (конкурентная ротация или logout);
// в этом случае новая запись не создаётся.
func (s *Store) Rotate(ctx context.Context, old *models.RefreshToken, newRaw string, expiresAt time.Time) (*models.RefreshToken, error) {
	const op = "refresh.Rotate"

	next, err := s.record(old.UserID, newRaw, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.backend.ReplaceRefreshToken(ctx, old, next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return next, nil
}

// Purge удаляет все записи, просроченные на момент now.
func (s *Store) Purge(ctx context.Context, now time.Time) (int64, error) {
	const op = "refresh.Purge"

	n, err := s.backend.DeleteExpiredTokens(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}
