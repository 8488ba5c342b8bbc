package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-chat-auth/internal/service"
)

func TestToHTTP_BaseMapping(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("service.auth.X: %w", err) }

	tcs := []struct {
		name       string
		in         error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"field", wrap(&service.FieldError{Field: "email", Reason: "is required"}), http.StatusBadRequest, "invalid_argument", "email: is required"},
		{"invalid_argument", wrap(service.ErrInvalidArgument), http.StatusBadRequest, "invalid_argument", "invalid argument"},
		{"credentials", wrap(service.ErrInvalidCredentials), http.StatusUnauthorized, "unauthenticated", "invalid credentials"},
		{"token", wrap(service.ErrInvalidToken), http.StatusUnauthorized, "unauthenticated", "invalid refresh token"},
		{"unauth", wrap(service.ErrUnauthenticated), http.StatusUnauthorized, "unauthenticated", "unauthenticated"},
		{"user gone", wrap(service.ErrUserNotFound), http.StatusUnauthorized, "unauthenticated", "unauthenticated"},
		{"dup username", wrap(service.ErrDuplicateUsername), http.StatusConflict, "already_exists", "username already taken"},
		{"email taken", wrap(service.ErrEmailTaken), http.StatusConflict, "already_exists", "email already taken"},
		{"canceled", wrap(context.Canceled), StatusClientClosedRequest, "canceled", "canceled"},
		{"deadline", wrap(context.DeadlineExceeded), http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal", "internal error"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			gotStatus, resp := ToHTTP(tc.in)
			require.Equal(t, tc.wantStatus, gotStatus)
			require.Equal(t, tc.wantCode, resp.Error.Code)
			require.Equal(t, tc.wantMsg, resp.Error.Message)
			require.Equal(t, tc.wantCode, Code(tc.in))
		})
	}
}

func TestToHTTP_NilError_Returns500Internal(t *testing.T) {
	gotStatus, resp := ToHTTP(nil)
	require.Equal(t, http.StatusInternalServerError, gotStatus)
	require.Equal(t, "internal", resp.Error.Code)
	require.Equal(t, "internal error", resp.Error.Message)
}

func TestWriteError_SetsRequestIDAndChallenge(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set(RequestIDHeader, "rid-1")

	WriteError(rr, req, service.ErrUnauthenticated)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "unauthenticated", body.Error.Code)
	require.Equal(t, "rid-1", body.Error.RequestID)
}

func TestWriteError_InternalDoesNotLeak(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)

	WriteError(rr, req, errors.New("secret dsn postgres://u:p@h"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "postgres")
	require.Empty(t, rr.Header().Get("WWW-Authenticate"))
}
