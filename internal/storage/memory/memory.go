// memory - хранилище пользователей и refresh-токенов в памяти процесса.
// Используется в тестах и при db.driver=memory; данные не переживают рестарт.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pribylovaa/go-chat-auth/internal/models"
	"github.com/pribylovaa/go-chat-auth/internal/storage"
)

type Storage struct {
	mu sync.RWMutex

	userSeq    int64
	users      map[int64]models.User
	byUsername map[string]int64
	byEmail    map[string]int64

	tokenSeq int64
	// userID -> tokenID -> запись.
	tokens map[int64]map[int64]models.RefreshToken

	now func() time.Time
}

// New создает пустое хранилище.
func New() *Storage {
	return &Storage{
		users:      make(map[int64]models.User),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
		tokens:     make(map[int64]map[int64]models.RefreshToken),
		now:        time.Now,
	}
}

// Ping всегда успешен.
func (s *Storage) Ping(context.Context) error { return nil }

// Close ничего не освобождает.
func (s *Storage) Close() {}

// SaveUser создает пользователя и проставляет ему ID.
func (s *Storage) SaveUser(_ context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[user.Username]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrUsernameExists)
	}

	email := strings.ToLower(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrEmailExists)
	}

	s.userSeq++
	user.ID = s.userSeq

	now := s.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	s.users[user.ID] = *user
	s.byUsername[user.Username] = user.ID
	s.byEmail[email] = user.ID

	return nil
}

// UserByUsername находит пользователя по имени.
func (s *Storage) UserByUsername(_ context.Context, username string) (*models.User, error) {
	const op = "storage.memory.UserByUsername"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	u := s.users[id]
	return &u, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(_ context.Context, id int64) (*models.User, error) {
	const op = "storage.memory.UserByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &u, nil
}

// SaveRefreshToken сохраняет запись и проставляет ей ID и CreatedAt.
func (s *Storage) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertLocked(token)

	return nil
}

// RefreshTokensByUser возвращает записи пользователя в порядке создания.
func (s *Storage) RefreshTokensByUser(_ context.Context, userID int64) ([]models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.tokens[userID]
	out := make([]models.RefreshToken, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// DeleteRefreshToken удаляет запись, если она ещё существует и хэш совпадает.
func (s *Storage) DeleteRefreshToken(_ context.Context, token *models.RefreshToken) error {
	const op = "storage.memory.DeleteRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deleteLocked(token) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ReplaceRefreshToken под одной блокировкой удаляет old и сохраняет next.
func (s *Storage) ReplaceRefreshToken(_ context.Context, old, next *models.RefreshToken) error {
	const op = "storage.memory.ReplaceRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deleteLocked(old) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	s.insertLocked(next)

	return nil
}

// DeleteUserRefreshTokens удаляет все записи пользователя.
func (s *Storage) DeleteUserRefreshTokens(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.tokens[userID]))
	delete(s.tokens, userID)

	return n, nil
}

// DeleteExpiredTokens удаляет все записи с ExpiresAt <= now.
func (s *Storage) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for userID, byID := range s.tokens {
		for id, t := range byID {
			if t.Expired(now) {
				delete(byID, id)
				n++
			}
		}

		if len(byID) == 0 {
			delete(s.tokens, userID)
		}
	}

	return n, nil
}

func (s *Storage) insertLocked(token *models.RefreshToken) {
	s.tokenSeq++
	token.ID = s.tokenSeq
	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.now().UTC()
	}

	byID, ok := s.tokens[token.UserID]
	if !ok {
		byID = make(map[int64]models.RefreshToken)
		s.tokens[token.UserID] = byID
	}

	byID[token.ID] = *token
}

func (s *Storage) deleteLocked(token *models.RefreshToken) bool {
	byID := s.tokens[token.UserID]

	cur, ok := byID[token.ID]
	if !ok || cur.TokenHash != token.TokenHash {
		return false
	}

	delete(byID, token.ID)
	if len(byID) == 0 {
		delete(s.tokens, token.UserID)
	}

	return true
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
