package handlers

import (
	"time"

	"github.com/pribylovaa/go-chat-auth/internal/models"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// tokenResponse - тело ответа login/register/refresh.
// Refresh-токен в тело не попадает, только в cookie.
type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type profileResponse struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func tokenFromSession(s *models.Session) tokenResponse {
	return tokenResponse{AccessToken: s.AccessToken, ExpiresAt: s.AccessExpiresAt.UTC()}
}

func profileFromUser(u *models.User) profileResponse {
	return profileResponse{
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}
