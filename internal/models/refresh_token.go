package models

import "time"

// RefreshToken - серверная запись refresh-токена.
// TokenHash никогда не равен самому токену: это bcrypt-хэш его SHA-256 дайджеста.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired сообщает, истёк ли срок записи на момент now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
