package models

import "errors"

// Закрытый набор доменных ошибок. Сервисы возвращают только их
// (обёрнутыми через fmt.Errorf с %w), обработчики сопоставляют
// через errors.Is и превращают в ответ API.
var (
	ErrUserNotFound            = errors.New("user not found")
	ErrSubscriptionNotFound    = errors.New("subscription not found")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrPromoCodeNotFound       = errors.New("promocode not found")
	ErrPromoCodeExpired        = errors.New("promocode expired")
	ErrPromoCodeAlreadyUsed    = errors.New("promocode already used")
	ErrNotFirstPurchase        = errors.New("promocode is valid only for the first purchase")
	ErrActiveDiscountExists    = errors.New("active discount already exists")
	ErrCodeGenerationExhausted = errors.New("unique code generation attempts exhausted")
	ErrInvalidGiftParams       = errors.New("invalid gift parameters")
	ErrInvalidGiftPayload      = errors.New("invalid gift payload")
)
