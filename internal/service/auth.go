package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pribylovaa/go-chat-auth/internal/auth"
	"github.com/pribylovaa/go-chat-auth/internal/models"
	"github.com/pribylovaa/go-chat-auth/internal/pkg/log"
	"github.com/pribylovaa/go-chat-auth/internal/pkg/redact"
	"github.com/pribylovaa/go-chat-auth/internal/storage"
	"github.com/pribylovaa/go-chat-auth/internal/token"
)

// Login выполняет вход по имени и паролю.
// Неизвестное имя и неверный пароль неразличимы: оба дают ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*models.Session, error) {
	const op = "service.auth.Login"

	username = normalizeUsername(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.users.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.burnVerify(password)
			log.From(ctx).Info("login_failed", "op", op, "reason", "unknown_user")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		log.From(ctx).Info("login_failed", "op", op, "user_id", user.ID, "reason", "bad_password")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("login_succeeded", "user_id", user.ID)

	return sess, nil
}

// Register создаёт пользователя и сразу выпускает ему сессию.
func (s *Service) Register(ctx context.Context, username, password, email string) (*models.Session, error) {
	const op = "service.auth.Register"

	username, err := validateUsername(username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.users.UserByUsername(ctx, username)
	if err == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrDuplicateUsername)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		Username:     username,
		Email:        normEmail,
		PasswordHash: hash,
	}

	if err := s.users.SaveUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, storage.ErrEmailExists):
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		case errors.Is(err, storage.ErrAlreadyExists):
			// Гонка двух регистраций с одним именем.
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateUsername)
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	log.From(ctx).Info("user_registered", "user_id", user.ID, "email", redact.Email(user.Email))

	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

// Refresh проверяет refresh-токен и атомарно заменяет его новой парой.
// Токен с верной подписью, но без живой записи в хранилище, недействителен.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*models.Session, error) {
	const op = "service.auth.Refresh"

	if rawRefresh == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, err := s.signer.VerifyKind(rawRefresh, token.KindRefresh)
	if err != nil {
		log.From(ctx).Info("refresh_rejected", "op", op, "err", err)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.users.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	old, err := s.tokens.Find(ctx, rawRefresh, user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.From(ctx).Warn("refresh_replay_rejected", "user_id", user.ID, "token", redact.Token())
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sess, err := s.newSession(user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.tokens.Rotate(ctx, old, sess.RefreshToken, sess.RefreshExpiresAt); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Запись уже ротирована или удалена конкурентным запросом.
			log.From(ctx).Warn("refresh_race_lost", "user_id", user.ID)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("refresh_rotated", "user_id", user.ID)

	return sess, nil
}

// Logout удаляет запись refresh-токена пользователя.
// Отсутствие записи (или токена) не ошибка: выход идемпотентен.
func (s *Service) Logout(ctx context.Context, rawRefresh string, userID int64) error {
	const op = "service.auth.Logout"

	if rawRefresh == "" {
		return nil
	}

	if err := s.tokens.Delete(ctx, rawRefresh, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("logout", "user_id", userID)

	return nil
}

// LogoutAll удаляет все записи refresh-токенов пользователя.
func (s *Service) LogoutAll(ctx context.Context, userID int64) error {
	const op = "service.auth.LogoutAll"

	n, err := s.tokens.DeleteAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("logout_all", "user_id", userID, "sessions", n)

	return nil
}

// Profile возвращает пользователя по ID.
func (s *Service) Profile(ctx context.Context, userID int64) (*models.User, error) {
	const op = "service.auth.Profile"

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// VerifyAccess проверяет access-токен без обращения к хранилищу.
func (s *Service) VerifyAccess(accessToken string) (auth.Identity, error) {
	const op = "service.auth.VerifyAccess"

	claims, err := s.signer.VerifyKind(accessToken, token.KindAccess)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrUnauthenticated, err)
	}

	return auth.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// issueSession выпускает пару токенов и сохраняет запись refresh-токена.
func (s *Service) issueSession(ctx context.Context, user *models.User) (*models.Session, error) {
	const op = "service.auth.issueSession"

	sess, err := s.newSession(user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.tokens.Create(ctx, user.ID, sess.RefreshToken, sess.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

func (s *Service) newSession(user *models.User) (*models.Session, error) {
	access, accessExp, err := s.signer.IssueAccess(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	rt, refreshExp, err := s.signer.IssueRefresh(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	return &models.Session{
		UserID:           user.ID,
		Username:         user.Username,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rt,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// burnVerify тратит на неизвестное имя столько же bcrypt-работы, сколько на реальное.
func (s *Service) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("chat-auth-dummy-password")
	})

	_ = s.hasher.Verify(password, s.dummyHash)
}
