package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/go-chat-auth/internal/pkg/log"
)

// errRequestTimeout - причина отмены контекста по дедлайну запроса.
var errRequestTimeout = errors.New("request timeout")

// Timeout ограничивает обработку запроса сроком d.
// Более ранний дедлайн родителя сохраняется; d <= 0 выключает ограничение.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeoutCause(r.Context(), d, errRequestTimeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))

			if errors.Is(context.Cause(ctx), errRequestTimeout) {
				logctx.From(ctx).Warn("request_timeout", "path", r.URL.Path, "limit", d)
			}
		})
	}
}
