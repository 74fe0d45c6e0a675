package promocode

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/storage"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 12
	maxAttempts = 10
)

// Префиксы кодов по типу.
const (
	PrefixGift  = "GIFT_"
	PrefixPromo = "PROMO_"
)

// randomCode генерирует криптографически случайный код с префиксом.
func randomCode(prefix string) (string, error) {
	const op = "promocode.randomCode"
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		buf[i] = codeCharset[n.Int64()]
	}
	return prefix + string(buf), nil
}

// generateUnique подбирает код, отсутствующий среди сохранённых.
// После maxAttempts коллизий возвращает ErrCodeGenerationExhausted,
// дубликат не возвращается никогда.
func generateUnique(ctx context.Context, uow storage.UnitOfWork, prefix string) (string, error) {
	const op = "promocode.generateUnique"
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := randomCode(prefix)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		existing, err := uow.PromoCodes().GetByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("%s: %w", op, models.ErrCodeGenerationExhausted)
}
