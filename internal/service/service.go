// service содержит бизнес-логику аутентификации чата:
// вход, регистрацию, ротацию refresh-токенов, выход и профиль.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования при потокобезопасных зависимостях.
//   - Ошибки возвращаются как sentinel-значения ниже и маппятся
//     транспортом на HTTP-статусы (internal/errors).
package service

import (
	"errors"
	"sync"

	"github.com/pribylovaa/go-chat-auth/internal/password"
	"github.com/pribylovaa/go-chat-auth/internal/refresh"
	"github.com/pribylovaa/go-chat-auth/internal/storage"
	"github.com/pribylovaa/go-chat-auth/internal/token"
)

var (
	// ErrInvalidCredentials - пользователь не найден ИЛИ пароль неверен.
	// Обе причины обязаны давать одну и ту же ошибку. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateUsername - имя пользователя уже занято. HTTP 409.
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrEmailTaken - e-mail уже занят другим пользователем. HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidToken - refresh-токен с плохой подписью, просрочен,
	// не того вида или отсутствует в хранилище. HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthenticated - нет access-токена или он недействителен. HTTP 401.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidArgument - входные данные не прошли валидацию. HTTP 400.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUserNotFound - пользователь из валидного токена больше не существует. HTTP 401.
	ErrUserNotFound = errors.New("user not found")
)

// FieldError - ошибка валидации конкретного поля.
// errors.Is(err, ErrInvalidArgument) == true.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Reason }

func (e *FieldError) Is(target error) bool { return target == ErrInvalidArgument }

// Service описывает бизнес-логику аутентификации.
type Service struct {
	users  storage.UserStorage
	tokens *refresh.Store
	signer *token.Signer
	hasher *password.Hasher

	// Хэш-пустышка для выравнивания времени ответа при неизвестном имени.
	dummyOnce sync.Once
	dummyHash string
}

// New создаёт новый экземпляр Service.
func New(users storage.UserStorage, tokens *refresh.Store, signer *token.Signer, hasher *password.Hasher) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		signer: signer,
		hasher: hasher,
	}
}
