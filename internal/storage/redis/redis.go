// redis - хранилище записей refresh-токенов в Redis.
//
// Раскладка ключей:
//   - <prefix>u:<userID> - hash: поле = ID записи, значение = "<hash>|<exp ms>|<created ms>";
//   - <prefix>seq - счётчик ID записей.
//
// Условное удаление и замена выполняются Lua-скриптами, поэтому
// из нескольких конкурентных ротаций одной записи проходит ровно одна.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-chat-auth/internal/models"
	"github.com/pribylovaa/go-chat-auth/internal/storage"
)

// DefaultPrefix используется, если prefix пустой.
const DefaultPrefix = "chat:rt:"

var errCorruptRecord = errors.New("corrupt refresh record")

// KEYS[1] - hash пользователя, KEYS[2] - счётчик.
// ARGV[1] - значение записи, ARGV[2] - TTL ключа в мс.
const saveScript = `
local id = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], tostring(id), ARGV[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return id
`

// KEYS[1] - hash пользователя. ARGV[1] - ID записи, ARGV[2] - ожидаемый хэш.
const deleteScript = `
local cur = redis.call("HGET", KEYS[1], ARGV[1])
if not cur then
  return 0
end
local want = ARGV[2] .. "|"
if string.sub(cur, 1, #want) ~= want then
  return 0
end
redis.call("HDEL", KEYS[1], ARGV[1])
return 1
`

// KEYS[1] - hash пользователя, KEYS[2] - счётчик.
// ARGV[1] - ID старой записи, ARGV[2] - её хэш,
// ARGV[3] - значение новой записи, ARGV[4] - TTL ключа в мс.
const replaceScript = `
local cur = redis.call("HGET", KEYS[1], ARGV[1])
if not cur then
  return 0
end
local want = ARGV[2] .. "|"
if string.sub(cur, 1, #want) ~= want then
  return 0
end
redis.call("HDEL", KEYS[1], ARGV[1])
local id = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], tostring(id), ARGV[3])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < tonumber(ARGV[4]) then
  redis.call("PEXPIRE", KEYS[1], ARGV[4])
end
return id
`

var (
	saveLua    = redis.NewScript(saveScript)
	deleteLua  = redis.NewScript(deleteScript)
	replaceLua = redis.NewScript(replaceScript)
)

type Storage struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// и проверяет соединение.
func New(ctx context.Context, redisURL, prefix string) (*Storage, error) {
	const op = "storage.redis.New"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithClient(rdb, prefix), nil
}

// NewWithClient оборачивает готовый клиент.
func NewWithClient(rdb *redis.Client, prefix string) *Storage {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Storage{rdb: rdb, prefix: prefix, now: time.Now}
}

// Ping проверяет доступность Redis (readiness).
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.redis.Ping"

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close закрывает клиент Redis.
func (s *Storage) Close() {
	_ = s.rdb.Close()
}

func (s *Storage) userKey(userID int64) string {
	return s.prefix + "u:" + strconv.FormatInt(userID, 10)
}

func (s *Storage) seqKey() string { return s.prefix + "seq" }

// SaveRefreshToken сохраняет запись и проставляет ей ID и CreatedAt.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.redis.SaveRefreshToken"

	s.stamp(token)

	id, err := saveLua.Run(ctx, s.rdb,
		[]string{s.userKey(token.UserID), s.seqKey()},
		encode(token), s.keyTTL(token),
	).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	token.ID = id

	return nil
}

// RefreshTokensByUser возвращает все записи пользователя в порядке создания.
func (s *Storage) RefreshTokensByUser(ctx context.Context, userID int64) ([]models.RefreshToken, error) {
	const op = "storage.redis.RefreshTokensByUser"

	m, err := s.rdb.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]models.RefreshToken, 0, len(m))
	for field, val := range m {
		t, err := decode(userID, field, val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// DeleteRefreshToken удаляет запись, если её хэш совпадает.
func (s *Storage) DeleteRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.redis.DeleteRefreshToken"

	n, err := deleteLua.Run(ctx, s.rdb,
		[]string{s.userKey(token.UserID)},
		token.ID, token.TokenHash,
	).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ReplaceRefreshToken одним скриптом удаляет old и сохраняет next.
func (s *Storage) ReplaceRefreshToken(ctx context.Context, old, next *models.RefreshToken) error {
	const op = "storage.redis.ReplaceRefreshToken"

	if old.UserID != next.UserID {
		return fmt.Errorf("%s: user mismatch", op)
	}

	s.stamp(next)

	id, err := replaceLua.Run(ctx, s.rdb,
		[]string{s.userKey(old.UserID), s.seqKey()},
		old.ID, old.TokenHash, encode(next), s.keyTTL(next),
	).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if id == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	next.ID = id

	return nil
}

// DeleteUserRefreshTokens удаляет все записи пользователя.
func (s *Storage) DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.redis.DeleteUserRefreshTokens"

	key := s.userKey(userID)

	var hlen *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hlen = pipe.HLen(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return hlen.Val(), nil
}

// DeleteExpiredTokens обходит ключи пользователей через SCAN
// и удаляет записи с ExpiresAt <= now.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.redis.DeleteExpiredTokens"

	var deleted int64

	iter := s.rdb.Scan(ctx, 0, s.prefix+"u:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		m, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return deleted, fmt.Errorf("%s: %w", op, err)
		}

		var expired []string
		for field, val := range m {
			t, err := decode(0, field, val)
			if err != nil || t.Expired(now) {
				expired = append(expired, field)
			}
		}

		if len(expired) == 0 {
			continue
		}

		n, err := s.rdb.HDel(ctx, key, expired...).Result()
		if err != nil {
			return deleted, fmt.Errorf("%s: %w", op, err)
		}

		deleted += n
	}

	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%s: %w", op, err)
	}

	return deleted, nil
}

func (s *Storage) stamp(token *models.RefreshToken) {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.now().UTC()
	}
}

// keyTTL - сколько должен жить ключ пользователя, чтобы пережить запись (минимум 1 мс).
func (s *Storage) keyTTL(token *models.RefreshToken) int64 {
	ms := time.Until(token.ExpiresAt).Milliseconds()
	if ms < 1 {
		ms = 1
	}

	return ms
}

func encode(token *models.RefreshToken) string {
	return token.TokenHash + "|" +
		strconv.FormatInt(token.ExpiresAt.UnixMilli(), 10) + "|" +
		strconv.FormatInt(token.CreatedAt.UnixMilli(), 10)
}

func decode(userID int64, field, val string) (models.RefreshToken, error) {
	id, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return models.RefreshToken{}, errCorruptRecord
	}

	parts := strings.Split(val, "|")
	if len(parts) != 3 {
		return models.RefreshToken{}, errCorruptRecord
	}

	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return models.RefreshToken{}, errCorruptRecord
	}

	created, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return models.RefreshToken{}, errCorruptRecord
	}

	return models.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: parts[0],
		ExpiresAt: time.UnixMilli(exp).UTC(),
		CreatedAt: time.UnixMilli(created).UTC(),
	}, nil
}

// Проверка на соответствие интерфейсу RefreshTokenStorage.
var _ storage.RefreshTokenStorage = (*Storage)(nil)
