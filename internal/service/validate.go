package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/pribylovaa/go-chat-auth/internal/password"
)

// Ограничения на входные данные регистрации.
const (
	maxUsernameLen   = 50
	minPasswordLen   = 6
	maxPasswordBytes = password.MaxBytes
	maxEmailLen      = 254
)

func normalizeUsername(raw string) string {
	return strings.TrimSpace(raw)
}

// validateUsername обрезает пробелы и проверяет длину.
func validateUsername(raw string) (string, error) {
	username := normalizeUsername(raw)
	if username == "" {
		return "", &FieldError{Field: "username", Reason: "is required"}
	}

	if utf8.RuneCountInString(username) > maxUsernameLen {
		return "", &FieldError{Field: "username", Reason: "must be at most 50 characters"}
	}

	return username, nil
}

// validateEmail проверяет формат email, обрезает пробелы и приводит к нижнему регистру.
func validateEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", &FieldError{Field: "email", Reason: "is required"}
	}

	if len(email) > maxEmailLen {
		return "", &FieldError{Field: "email", Reason: "is too long"}
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &FieldError{Field: "email", Reason: "must be a valid address"}
	}

	return strings.ToLower(email), nil
}

// validatePassword: не короче 6 символов и не длиннее 72 байт (предел bcrypt).
func validatePassword(pw string) error {
	if pw == "" {
		return &FieldError{Field: "password", Reason: "is required"}
	}

	if utf8.RuneCountInString(pw) < minPasswordLen {
		return &FieldError{Field: "password", Reason: "must be at least 6 characters"}
	}

	if len(pw) > maxPasswordBytes {
		return &FieldError{Field: "password", Reason: "must be at most 72 bytes"}
	}

	return nil
}
