package models

import "time"

// Session - результат входа/регистрации/обновления.
//
// Описание:
//   - AccessToken - короткоживущий JWT, отдаётся в теле ответа;
//   - RefreshToken - долгоживущий JWT, отдаётся только в HTTP-only cookie;
//     на сервере хранится лишь его хэш;
//   - RefreshExpiresAt совпадает с exp refresh-токена и ExpiresAt его записи.
type Session struct {
	UserID           int64
	Username         string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
