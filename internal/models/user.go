package models

import "time"

// User - модель пользователя чата.
// Уникальность Username обеспечивает хранилище.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
