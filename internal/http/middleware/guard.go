package middleware

import (
	"net/http"
	"strings"

	"github.com/pribylovaa/go-chat-auth/internal/auth"
	apierrors "github.com/pribylovaa/go-chat-auth/internal/errors"
	logctx "github.com/pribylovaa/go-chat-auth/internal/pkg/log"
	"github.com/pribylovaa/go-chat-auth/internal/service"
)

// AccessVerifier проверяет access-токен (подпись, срок, вид) без I/O.
type AccessVerifier interface {
	VerifyAccess(token string) (auth.Identity, error)
}

// PublicMatcher сообщает, помечен ли маршрут публичным.
type PublicMatcher interface {
	IsPublic(method, path string) bool
}

// Guard пропускает публичные маршруты как есть; на остальных требует
// валидный access-токен в Authorization: Bearer и кладёт auth.Identity в контекст.
// Хранилище refresh-токенов guard не трогает.
func Guard(v AccessVerifier, public PublicMatcher) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public != nil && public.IsPublic(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			tok, ok := BearerToken(r)
			if !ok {
				apierrors.WriteError(w, r, service.ErrUnauthenticated)
				return
			}

			id, err := v.VerifyAccess(tok)
			if err != nil {
				logctx.From(r.Context()).Info("access_rejected", "path", r.URL.Path, "err", err)
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := auth.WithIdentity(r.Context(), id)
			ctx = logctx.With(ctx, "user_id", id.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken достаёт токен из заголовка Authorization: Bearer <token>.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")

	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}

	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
