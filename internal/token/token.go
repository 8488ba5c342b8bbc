// token выпускает и проверяет подписанные JWT (HS256) с ограниченным сроком.
//
// Access- и refresh-токены выпускаются одним примитивом с разными TTL;
// вид токена фиксируется в claim "kind". Проверка чистая: без I/O,
// отзыв refresh-токенов - забота вызывающего (refresh.Store).
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Значения по умолчанию для TTL.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalidSignature - подпись/формат/алгоритм/издатель не прошли проверку.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired - срок действия токена истёк.
	ErrExpired = errors.New("token expired")
	// ErrWrongKind - подпись верна, но вид токена не тот, что ожидался.
	ErrWrongKind = errors.New("unexpected token kind")
	// ErrEmptySecret - ключ подписи не задан.
	ErrEmptySecret = errors.New("empty signing secret")
)

// Kind - вид токена.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims - полезная нагрузка токена.
type Claims struct {
	UserID    int64
	Username  string
	Kind      Kind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Options - параметры подписанта. Secret загружается один раз при старте.
type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

// Signer выпускает и проверяет токены. Неизменяем после создания.
type Signer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

type jwtClaims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	Kind     Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// NewSigner создаёт Signer; нулевые TTL заменяются значениями по умолчанию.
func NewSigner(opts Options) (*Signer, error) {
	const op = "token.NewSigner"

	if opts.Secret == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	if opts.AccessTTL == 0 {
		opts.AccessTTL = DefaultAccessTTL
	}

	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}

	return &Signer{
		secret:     []byte(opts.Secret),
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		issuer:     opts.Issuer,
		now:        time.Now,
	}, nil
}

// AccessTTL возвращает срок жизни access-токена.
func (s *Signer) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL возвращает срок жизни refresh-токена.
func (s *Signer) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue подписывает claims со сроком ttl и возвращает токен и момент истечения.
// IssuedAt/ExpiresAt/ID из claims игнорируются и проставляются заново.
func (s *Signer) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	const op = "token.Issue"

	// JWT хранит время с точностью до секунды.
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)

	jc := jwtClaims{
		UserID:   claims.UserID,
		Username: claims.Username,
		Kind:     claims.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(claims.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jc).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// IssueAccess выпускает access-токен с настроенным TTL.
func (s *Signer) IssueAccess(userID int64, username string) (string, time.Time, error) {
	return s.Issue(Claims{UserID: userID, Username: username, Kind: KindAccess}, s.accessTTL)
}

// IssueRefresh выпускает refresh-токен с настроенным TTL.
func (s *Signer) IssueRefresh(userID int64, username string) (string, time.Time, error) {
	return s.Issue(Claims{UserID: userID, Username: username, Kind: KindRefresh}, s.refreshTTL)
}

// Verify проверяет подпись и срок действия токена.
// Возвращает ErrExpired для просроченного токена, ErrInvalidSignature - для всего прочего.
func (s *Signer) Verify(tokenStr string) (*Claims, error) {
	const op = "token.Verify"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &jwtClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	jc, ok := tok.Claims.(*jwtClaims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	if jc.Subject != strconv.FormatInt(jc.UserID, 10) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	c := &Claims{
		UserID:   jc.UserID,
		Username: jc.Username,
		Kind:     jc.Kind,
		ID:       jc.ID,
	}
	if jc.IssuedAt != nil {
		c.IssuedAt = jc.IssuedAt.Time.UTC()
	}
	c.ExpiresAt = jc.ExpiresAt.Time.UTC()

	return c, nil
}

// VerifyKind - Verify плюс проверка вида токена.
func (s *Signer) VerifyKind(tokenStr string, kind Kind) (*Claims, error) {
	const op = "token.VerifyKind"

	c, err := s.Verify(tokenStr)
	if err != nil {
		return nil, err
	}

	if c.Kind != kind {
		return nil, fmt.Errorf("%s: %w", op, ErrWrongKind)
	}

	return c, nil
}
