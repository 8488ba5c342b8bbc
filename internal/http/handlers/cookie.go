package handlers

import (
	"net/http"
)

// setRefreshCookie выдаёт refresh-токен в HTTP-only cookie.
// Path общий для выдачи и очистки (по умолчанию /auth), а не /auth/refresh:
// cookie нужна и /auth/refresh, и /auth/logout.
func (h *Handlers) setRefreshCookie(w http.ResponseWriter, raw string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    raw,
		Path:     h.cookie.Path,
		MaxAge:   int(h.cookie.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie удаляет cookie: тот же Name/Path, Max-Age=0.
func (h *Handlers) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshCookie читает refresh-токен из cookie; пустая строка, если его нет.
func (h *Handlers) refreshCookie(r *http.Request) string {
	c, err := r.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}

	return c.Value
}
