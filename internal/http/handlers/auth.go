package handlers

import (
	"net/http"

	"github.com/pribylovaa/go-chat-auth/internal/auth"
	apierrors "github.com/pribylovaa/go-chat-auth/internal/errors"
	"github.com/pribylovaa/go-chat-auth/internal/http/middleware"
	"github.com/pribylovaa/go-chat-auth/internal/service"
)

// Имена операций в метриках.
const (
	opLogin     = "login"
	opRegister  = "register"
	opRefresh   = "refresh"
	opLogout    = "logout"
	opLogoutAll = "logout_all"
	opProfile   = "profile"
)

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		h.observe(opLogin, err)
		apierrors.WriteError(w, r, err)
		return
	}

	sess, err := h.svc.Login(r.Context(), in.Username, in.Password)
	h.observe(opLogin, err)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, sess.RefreshToken)
	writeJSON(w, http.StatusOK, tokenFromSession(sess))
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(w, r, &in); err != nil {
		h.observe(opRegister, err)
		apierrors.WriteError(w, r, err)
		return
	}

	sess, err := h.svc.Register(r.Context(), in.Username, in.Password, in.Email)
	h.observe(opRegister, err)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, sess.RefreshToken)
	writeJSON(w, http.StatusCreated, tokenFromSession(sess))
}

// Refresh берёт refresh-токен из cookie, иначе из Authorization: Bearer.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshCookie(r)
	if raw == "" {
		raw, _ = middleware.BearerToken(r)
	}

	sess, err := h.svc.Refresh(r.Context(), raw)
	h.observe(opRefresh, err)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, sess.RefreshToken)
	writeJSON(w, http.StatusOK, tokenFromSession(sess))
}

// Logout удаляет текущую сессию (по cookie) и очищает cookie.
// Повторный выход или выход без cookie успешен.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthenticated)
		return
	}

	err := h.svc.Logout(r.Context(), h.refreshCookie(r), id.UserID)
	h.observe(opLogout, err)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// LogoutAll завершает все сессии пользователя.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthenticated)
		return
	}

	err := h.svc.LogoutAll(r.Context(), id.UserID)
	h.observe(opLogoutAll, err)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out from all sessions"})
}

func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthenticated)
		return
	}

	user, err := h.svc.Profile(r.Context(), id.UserID)
	h.observe(opProfile, err)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profileFromUser(user))
}
