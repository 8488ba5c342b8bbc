package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/go-chat-auth/internal/errors"
	"github.com/pribylovaa/go-chat-auth/internal/metrics"
	"github.com/pribylovaa/go-chat-auth/internal/models"
	"github.com/pribylovaa/go-chat-auth/internal/service"
)

// Максимальный размер JSON-тела запроса.
const maxBodyBytes = 1 << 20

// AuthService - потребляемая хендлерами часть service.Service.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*models.Session, error)
	Register(ctx context.Context, username, password, email string) (*models.Session, error)
	Refresh(ctx context.Context, rawRefresh string) (*models.Session, error)
	Logout(ctx context.Context, rawRefresh string, userID int64) error
	LogoutAll(ctx context.Context, userID int64) error
	Profile(ctx context.Context, userID int64) (*models.User, error)
}

// CookieOptions - параметры refresh-cookie.
type CookieOptions struct {
	Name   string
	Path   string
	Secure bool
	TTL    time.Duration
}

// Handlers агрегирует зависимости /auth/* хендлеров.
type Handlers struct {
	svc     AuthService
	cookie  CookieOptions
	metrics *metrics.Metrics
}

func New(svc AuthService, cookie CookieOptions, m *metrics.Metrics) *Handlers {
	return &Handlers{svc: svc, cookie: cookie, metrics: m}
}

// writeJSON - единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict - строгий JSON-декодер: запрещаем неизвестные поля и хвост после объекта.
// Любая ошибка разбора превращается в service.FieldError (400).
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return &service.FieldError{Field: "body", Reason: decodeReason(err)}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &service.FieldError{Field: "body", Reason: "must contain a single JSON object"}
	}

	return nil
}

func decodeReason(err error) string {
	var maxErr *http.MaxBytesError

	switch {
	case errors.Is(err, io.EOF):
		return "is empty"
	case errors.As(err, &maxErr):
		return fmt.Sprintf("exceeds %d bytes", maxErr.Limit)
	default:
		return "malformed JSON"
	}
}

// observe учитывает результат операции в метриках.
func (h *Handlers) observe(op string, err error) {
	if err == nil {
		h.metrics.Op(op, metrics.ResultOK)
		return
	}

	h.metrics.Op(op, apierrors.Code(err))
}
