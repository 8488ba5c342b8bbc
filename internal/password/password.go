// password реализует одностороннее солёное хэширование паролей (bcrypt).
//
// Хэшер не логирует и не возвращает открытый текст; Verify никогда не
// возвращает ошибку на несовпадении - только false.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost - стоимость bcrypt по умолчанию (2^10 раундов).
const DefaultCost = 10

// MaxBytes - предел длины пароля: bcrypt учитывает только первые 72 байта.
const MaxBytes = 72

// ErrInvalidCost - стоимость вне диапазона, поддерживаемого bcrypt.
var ErrInvalidCost = errors.New("invalid bcrypt cost")

// Hasher хэширует и проверяет пароли с фиксированной стоимостью.
// Безопасен для конкурентного использования.
type Hasher struct {
	cost int
}

// New создаёт Hasher. Нижнюю границу для боевой конфигурации
// проверяет config.Validate; здесь - только пределы bcrypt.
func New(cost int) (*Hasher, error) {
	const op = "password.New"

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%s: %w: %d", op, ErrInvalidCost, cost)
	}

	return &Hasher{cost: cost}, nil
}

// Cost возвращает стоимость хэширования.
func (h *Hasher) Cost() int { return h.cost }

// Hash возвращает bcrypt-хэш пароля со случайной солью.
func (h *Hasher) Hash(plain string) (string, error) {
	const op = "password.Hash"

	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(b), nil
}

// Verify сравнивает пароль с хэшем средствами bcrypt (постоянное время).
// Некорректный хэш и пароль длиннее MaxBytes трактуются как несовпадение:
// иначе bcrypt принял бы любой хвост после 72-го байта.
func (h *Hasher) Verify(plain, hash string) bool {
	if len(plain) > MaxBytes {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
