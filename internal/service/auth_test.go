package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-chat-auth/internal/models"
	"github.com/pribylovaa/go-chat-auth/internal/password"
	"github.com/pribylovaa/go-chat-auth/internal/refresh"
	"github.com/pribylovaa/go-chat-auth/internal/storage"
	"github.com/pribylovaa/go-chat-auth/internal/token"
	"github.com/pribylovaa/go-chat-auth/mocks"
)

type mockDeps struct {
	users  *mocks.MockUserStorage
	tokens *mocks.MockRefreshTokenStorage
	signer *token.Signer
	hasher *password.Hasher
}

func testSigner(t *testing.T) *token.Signer {
	t.Helper()
	s, err := token.NewSigner(token.Options{
		Secret:     "unit-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "chat-auth",
	})
	require.NoError(t, err)
	return s
}

func testHasher(t *testing.T) *password.Hasher {
	t.Helper()
	h, err := password.New(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func newSvc(t *testing.T) (*Service, mockDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)

	d := mockDeps{
		users:  mocks.NewMockUserStorage(ctrl),
		tokens: mocks.NewMockRefreshTokenStorage(ctrl),
		signer: testSigner(t),
		hasher: testHasher(t),
	}

	svc := New(d.users, refresh.New(d.tokens, d.hasher), d.signer, d.hasher)
	return svc, d
}

func mustHashPW(t *testing.T, h *password.Hasher, pw string) string {
	t.Helper()
	hash, err := h.Hash(pw)
	require.NoError(t, err)
	return hash
}

func TestLogin_OK(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	user := &models.User{ID: 1, Username: "alice", PasswordHash: mustHashPW(t, d.hasher, "secret1")}
	d.users.EXPECT().UserByUsername(gomock.Any(), "alice").Return(user, nil)

	var saved *models.RefreshToken
	d.tokens.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rt *models.RefreshToken) error {
			saved = rt
			return nil
		})

	sess, err := svc.Login(context.Background(), "  alice ", "secret1")
	require.NoError(t, err)
	require.Equal(t, int64(1), sess.UserID)
	require.NotEmpty(t, sess.AccessToken)
	require.NotEmpty(t, sess.RefreshToken)
	require.NotEqual(t, sess.AccessToken, sess.RefreshToken)

	// Запись хранит хэш, срок совпадает с exp refresh-токена.
	require.NotNil(t, saved)
	require.Equal(t, int64(1), saved.UserID)
	require.NotContains(t, saved.TokenHash, sess.RefreshToken)
	require.True(t, saved.ExpiresAt.Equal(sess.RefreshExpiresAt))
	require.WithinDuration(t, time.Now().Add(7*24*time.Hour), sess.RefreshExpiresAt, 2*time.Second)

	claims, err := d.signer.VerifyKind(sess.AccessToken, token.KindAccess)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt, 2*time.Second)
}

func TestLogin_UnknownUserAndWrongPassword_SameError(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	user := &models.User{ID: 1, Username: "alice", PasswordHash: mustHashPW(t, d.hasher, "secret1")}
	d.users.EXPECT().UserByUsername(gomock.Any(), "alice").Return(user, nil)
	d.users.EXPECT().UserByUsername(gomock.Any(), "ghost").
		Return(nil, fmt.Errorf("wrapped: %w", storage.ErrNotFound))

	_, errWrong := svc.Login(context.Background(), "alice", "wrong")
	_, errUnknown := svc.Login(context.Background(), "ghost", "secret1")

	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestLogin_EmptyFields(t *testing.T) {
	t.Parallel()

	svc, _ := newSvc(t)

	_, err := svc.Login(context.Background(), "", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "alice", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_StorageError_Propagated(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	boom := errors.New("db down")

	d.users.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, boom)

	_, err := svc.Login(context.Background(), "alice", "secret1")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_SaveRefreshError_Propagated(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	boom := errors.New("insert failed")

	user := &models.User{ID: 1, Username: "alice", PasswordHash: mustHashPW(t, d.hasher, "secret1")}
	d.users.EXPECT().UserByUsername(gomock.Any(), "alice").Return(user, nil)
	d.tokens.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(boom)

	_, err := svc.Login(context.Background(), "alice", "secret1")
	require.ErrorIs(t, err, boom)
}

func TestRegister_OK(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	d.users.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
	d.users.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			require.Equal(t, "alice@example.com", u.Email)
			require.NotEqual(t, "secret1", u.PasswordHash)
			require.True(t, d.hasher.Verify("secret1", u.PasswordHash))
			u.ID = 10
			return nil
		})
	d.tokens.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	sess, err := svc.Register(context.Background(), "alice", "secret1", " Alice@Example.com ")
	require.NoError(t, err)
	require.Equal(t, int64(10), sess.UserID)
	require.Equal(t, "alice", sess.Username)
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := newSvc(t)

	tests := []struct {
		name, username, password, email, field string
	}{
		{"empty username", "  ", "secret1", "a@example.com", "username"},
		{"long username", strings.Repeat("u", 51), "secret1", "a@example.com", "username"},
		{"bad email", "alice", "secret1", "not-an-email", "email"},
		{"display-name email", "alice", "secret1", "Alice <a@example.com>", "email"},
		{"empty password", "alice", "", "a@example.com", "password"},
		{"short password", "alice", "12345", "a@example.com", "password"},
		{"too long password", "alice", strings.Repeat("p", 73), "a@example.com", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.username, tt.password, tt.email)
			require.ErrorIs(t, err, ErrInvalidArgument)

			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			require.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestRegister_DuplicateUsername_OnLookup(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	d.users.EXPECT().UserByUsername(gomock.Any(), "alice").Return(&models.User{ID: 1, Username: "alice"}, nil)

	_, err := svc.Register(context.Background(), "alice", "secret1", "a@example.com")
	require.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestRegister_SaveUserConflicts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		saveErr error
		want    error
	}{
		{"username race", storage.ErrUsernameExists, ErrDuplicateUsername},
		{"email taken", storage.ErrEmailExists, ErrEmailTaken},
		{"generic unique", storage.ErrAlreadyExists, ErrDuplicateUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newSvc(t)

			d.users.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
			d.users.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(fmt.Errorf("pg: %w", tt.saveErr))

			_, err := svc.Register(context.Background(), "alice", "secret1", "a@example.com")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegister_LookupError_Propagated(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	boom := errors.New("db down")

	d.users.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, boom)

	_, err := svc.Register(context.Background(), "alice", "secret1", "a@example.com")
	require.ErrorIs(t, err, boom)
}

func TestRefresh_InvalidInputs(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	_, err := svc.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Refresh(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrInvalidToken)

	// Access-токен не годится для refresh.
	access, _, err := d.signer.IssueAccess(1, "alice")
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), access)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_UserGone(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	rt, _, err := d.signer.IssueRefresh(1, "alice")
	require.NoError(t, err)

	d.users.EXPECT().UserByID(gomock.Any(), int64(1)).Return(nil, storage.ErrNotFound)

	_, err = svc.Refresh(context.Background(), rt)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_NotInStore(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	rt, _, err := d.signer.IssueRefresh(1, "alice")
	require.NoError(t, err)

	d.users.EXPECT().UserByID(gomock.Any(), int64(1)).Return(&models.User{ID: 1, Username: "alice"}, nil)
	d.tokens.EXPECT().RefreshTokensByUser(gomock.Any(), int64(1)).Return(nil, nil)

	_, err = svc.Refresh(context.Background(), rt)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_LostRace(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	rt, exp, err := d.signer.IssueRefresh(1, "alice")
	require.NoError(t, err)
	rec := storedRecord(t, d, 1, rt, exp)

	d.users.EXPECT().UserByID(gomock.Any(), int64(1)).Return(&models.User{ID: 1, Username: "alice"}, nil)
	d.tokens.EXPECT().RefreshTokensByUser(gomock.Any(), int64(1)).Return([]models.RefreshToken{rec}, nil)
	d.tokens.EXPECT().ReplaceRefreshToken(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("tx: %w", storage.ErrNotFound))

	_, err = svc.Refresh(context.Background(), rt)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_ReplaceError_Propagated(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	boom := errors.New("tx failed")

	rt, exp, err := d.signer.IssueRefresh(1, "alice")
	require.NoError(t, err)
	rec := storedRecord(t, d, 1, rt, exp)

	d.users.EXPECT().UserByID(gomock.Any(), int64(1)).Return(&models.User{ID: 1, Username: "alice"}, nil)
	d.tokens.EXPECT().RefreshTokensByUser(gomock.Any(), int64(1)).Return([]models.RefreshToken{rec}, nil)
	d.tokens.EXPECT().ReplaceRefreshToken(gomock.Any(), gomock.Any(), gomock.Any()).Return(boom)

	_, err = svc.Refresh(context.Background(), rt)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrInvalidToken)
}

func TestLogout_EmptyToken_NoStoreCall(t *testing.T) {
	t.Parallel()

	svc, _ := newSvc(t)
	require.NoError(t, svc.Logout(context.Background(), "", 1))
}

func TestLogout_StoreError_Propagated(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	boom := errors.New("db down")

	d.tokens.EXPECT().RefreshTokensByUser(gomock.Any(), int64(1)).Return(nil, boom)

	require.ErrorIs(t, svc.Logout(context.Background(), "rt", 1), boom)
}

func TestLogoutAll(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	d.tokens.EXPECT().DeleteUserRefreshTokens(gomock.Any(), int64(1)).Return(int64(3), nil)
	require.NoError(t, svc.LogoutAll(context.Background(), 1))

	boom := errors.New("db down")
	d.tokens.EXPECT().DeleteUserRefreshTokens(gomock.Any(), int64(1)).Return(int64(0), boom)
	require.ErrorIs(t, svc.LogoutAll(context.Background(), 1), boom)
}

func TestProfile(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	d.users.EXPECT().UserByID(gomock.Any(), int64(1)).Return(&models.User{ID: 1, Username: "alice"}, nil)
	u, err := svc.Profile(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)

	d.users.EXPECT().UserByID(gomock.Any(), int64(2)).Return(nil, storage.ErrNotFound)
	_, err = svc.Profile(context.Background(), 2)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestVerifyAccess(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	access, _, err := d.signer.IssueAccess(5, "bob")
	require.NoError(t, err)

	id, err := svc.VerifyAccess(access)
	require.NoError(t, err)
	require.Equal(t, int64(5), id.UserID)
	require.Equal(t, "bob", id.Username)

	rt, _, err := d.signer.IssueRefresh(5, "bob")
	require.NoError(t, err)
	_, err = svc.VerifyAccess(rt)
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.ErrorIs(t, err, token.ErrWrongKind)

	_, err = svc.VerifyAccess("junk")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

// storedRecord строит запись так, как её сохранил бы refresh.Store.
func storedRecord(t *testing.T, d mockDeps, userID int64, raw string, exp time.Time) models.RefreshToken {
	t.Helper()

	// Через временное хранилище на моке получаем хэш ровно того формата, что пишет Store.
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockRefreshTokenStorage(ctrl)

	var rec models.RefreshToken
	backend.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rt *models.RefreshToken) error {
			rt.ID = 1
			rec = *rt
			return nil
		})

	_, err := refresh.New(backend, d.hasher).Create(context.Background(), userID, raw, exp)
	require.NoError(t, err)

	return rec
}
