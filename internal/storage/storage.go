package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/go-chat-auth/internal/models"
)

//go:generate mockgen -source=storage.go -destination=../../mocks/storage.go -package=mocks -exclude_interfaces=Storage

var (
	// ErrNotFound - запись не найдена (пользователь/refresh-токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists - нарушение уникальности.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUsernameExists - занято имя пользователя; errors.Is(.., ErrAlreadyExists) == true.
	ErrUsernameExists = fmt.Errorf("username %w", ErrAlreadyExists)
	// ErrEmailExists - занят email; errors.Is(.., ErrAlreadyExists) == true.
	ErrEmailExists = fmt.Errorf("email %w", ErrAlreadyExists)
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает пользователя и проставляет ему ID.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByUsername находит пользователя по имени.
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id int64) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над записями refresh-токенов.
// Записи хранят только хэш токена и разбиты по userID.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет запись и проставляет ей ID и CreatedAt.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokensByUser возвращает все записи пользователя (в том числе просроченные).
	RefreshTokensByUser(ctx context.Context, userID int64) ([]models.RefreshToken, error)
	// DeleteRefreshToken удаляет запись по (ID, UserID, TokenHash);
	// ErrNotFound, если такой записи уже нет.
	DeleteRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// ReplaceRefreshToken атомарно удаляет old и сохраняет next.
	// Если old уже удалена, ничего не меняет и возвращает ErrNotFound.
	ReplaceRefreshToken(ctx context.Context, old, next *models.RefreshToken) error
	// DeleteUserRefreshTokens удаляет все записи пользователя.
	DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error)
	// DeleteExpiredTokens удаляет все записи с ExpiresAt <= now.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Storage задает контракт основного хранилища.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Ping(ctx context.Context) error
	Close()
}
