package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pribylovaa/go-chat-auth/internal/models"
	"github.com/pribylovaa/go-chat-auth/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestUsers_SaveAndLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	u := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h"}
	require.NoError(t, s.SaveUser(ctx, u))
	require.Equal(t, int64(1), u.ID)
	require.False(t, u.CreatedAt.IsZero())
	require.Equal(t, u.CreatedAt, u.UpdatedAt)

	got, err := s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, *u, *got)

	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)

	_, err = s.UserByUsername(ctx, "bob")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.UserByID(ctx, 100)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUsers_Uniqueness(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	require.NoError(t, s.SaveUser(ctx, &models.User{Username: "alice", Email: "a@example.com"}))

	err := s.SaveUser(ctx, &models.User{Username: "alice", Email: "other@example.com"})
	require.ErrorIs(t, err, storage.ErrUsernameExists)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	err = s.SaveUser(ctx, &models.User{Username: "bob", Email: "A@example.com"})
	require.ErrorIs(t, err, storage.ErrEmailExists)
}

func TestRefreshTokens_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	exp := time.Now().Add(time.Hour)

	a := &models.RefreshToken{UserID: 1, TokenHash: "ha", ExpiresAt: exp}
	b := &models.RefreshToken{UserID: 1, TokenHash: "hb", ExpiresAt: exp}
	c := &models.RefreshToken{UserID: 2, TokenHash: "hc", ExpiresAt: exp}
	for _, tok := range []*models.RefreshToken{a, b, c} {
		require.NoError(t, s.SaveRefreshToken(ctx, tok))
		require.NotZero(t, tok.ID)
		require.False(t, tok.CreatedAt.IsZero())
	}

	list, err := s.RefreshTokensByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "ha", list[0].TokenHash)
	require.Equal(t, "hb", list[1].TokenHash)

	// Хэш не совпал - запись не трогаем.
	wrong := *a
	wrong.TokenHash = "zzz"
	require.ErrorIs(t, s.DeleteRefreshToken(ctx, &wrong), storage.ErrNotFound)

	require.NoError(t, s.DeleteRefreshToken(ctx, a))
	require.ErrorIs(t, s.DeleteRefreshToken(ctx, a), storage.ErrNotFound)

	n, err := s.DeleteUserRefreshTokens(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	list, err = s.RefreshTokensByUser(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = s.RefreshTokensByUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestReplaceRefreshToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	exp := time.Now().Add(time.Hour)

	old := &models.RefreshToken{UserID: 1, TokenHash: "old", ExpiresAt: exp}
	require.NoError(t, s.SaveRefreshToken(ctx, old))

	next := &models.RefreshToken{UserID: 1, TokenHash: "new", ExpiresAt: exp}
	require.NoError(t, s.ReplaceRefreshToken(ctx, old, next))
	require.NotEqual(t, old.ID, next.ID)

	// Повторная замена того же old не проходит и ничего не вставляет.
	again := &models.RefreshToken{UserID: 1, TokenHash: "again", ExpiresAt: exp}
	require.ErrorIs(t, s.ReplaceRefreshToken(ctx, old, again), storage.ErrNotFound)

	list, err := s.RefreshTokensByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "new", list[0].TokenHash)
}

func TestReplaceRefreshToken_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	exp := time.Now().Add(time.Hour)

	old := &models.RefreshToken{UserID: 1, TokenHash: "old", ExpiresAt: exp}
	require.NoError(t, s.SaveRefreshToken(ctx, old))

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := *old
			next := &models.RefreshToken{UserID: 1, TokenHash: "new", ExpiresAt: exp}
			if err := s.ReplaceRefreshToken(ctx, &o, next); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)

	list, err := s.RefreshTokensByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestDeleteExpiredTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	now := time.Now()

	require.NoError(t, s.SaveRefreshToken(ctx, &models.RefreshToken{UserID: 1, TokenHash: "a", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, s.SaveRefreshToken(ctx, &models.RefreshToken{UserID: 1, TokenHash: "b", ExpiresAt: now}))
	require.NoError(t, s.SaveRefreshToken(ctx, &models.RefreshToken{UserID: 2, TokenHash: "c", ExpiresAt: now.Add(time.Hour)}))

	n, err := s.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	list, err := s.RefreshTokensByUser(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = s.RefreshTokensByUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
