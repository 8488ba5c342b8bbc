// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает доменную ошибку сервиса, на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/go-chat-auth/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// RequestIDHeader - заголовок с идентификатором запроса.
const RequestIDHeader = "X-Request-Id"

// APIError - единый формат для фронта.
// Code - короткий стабильный код для машиночитаемой обработки.
// Message - безопасное человекочитаемое описание.
// RequestID - из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse - корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и тело ответа.
//
// Таблица:
//   - ErrInvalidArgument -> 400 (текст FieldError, если он есть);
//   - ErrInvalidCredentials/ErrInvalidToken/ErrUnauthenticated/ErrUserNotFound -> 401;
//   - ErrDuplicateUsername/ErrEmailTaken -> 409;
//   - context.Canceled -> 499, context.DeadlineExceeded -> 504;
//   - err == nil или прочее -> 500/internal.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// Code возвращает только машиночитаемый код (для метрик).
func Code(err error) string {
	_, code, _ := classify(err)
	return code
}

func classify(err error) (int, string, string) {
	var fe *service.FieldError

	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case stderrors.As(err, &fe):
		return http.StatusBadRequest, "invalid_argument", fe.Error()
	case stderrors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case stderrors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "unauthenticated", "invalid credentials"
	case stderrors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthenticated", "invalid refresh token"
	case stderrors.Is(err, service.ErrUnauthenticated),
		stderrors.Is(err, service.ErrUserNotFound):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case stderrors.Is(err, service.ErrDuplicateUsername):
		return http.StatusConflict, "already_exists", "username already taken"
	case stderrors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "already_exists", "email already taken"
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

// WriteError - хелпер для HTTP-хендлеров и middleware.
// Пишет статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get(RequestIDHeader); rid != "" {
		resp.Error.RequestID = rid
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
