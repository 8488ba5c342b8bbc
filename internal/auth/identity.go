// auth переносит идентичность аутентифицированного вызывающего через context.Context.
package auth

import "context"

// Identity - кто выполняет запрос (из проверенного access-токена).
type Identity struct {
	UserID   int64
	Username string
}

type ctxKey struct{}

// WithIdentity кладёт идентичность в контекст.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom достаёт идентичность; ok=false, если запрос не аутентифицирован.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Authenticated сообщает, прошёл ли запрос проверку access-токена.
func Authenticated(ctx context.Context) bool {
	_, ok := IdentityFrom(ctx)
	return ok
}
