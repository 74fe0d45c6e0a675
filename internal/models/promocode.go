package models

import "time"

// PromoCodeType тип промокода.
type PromoCodeType string

const (
	PromoCodeBalanceBonus     PromoCodeType = "balance_bonus"
	PromoCodeSubscriptionDays PromoCodeType = "subscription_days"
	PromoCodeTrial            PromoCodeType = "trial"
	PromoCodeDiscount         PromoCodeType = "discount"
	PromoCodeGift             PromoCodeType = "gift"
)

// PromoCode одноразовый (или ограниченно многоразовый) код.
// Эффект зависит от типа: пополнение баланса, дни подписки, триал,
// скидка или подарочная подписка (параметры в Payload).
// Коды не удаляются — журнал активаций должен оставаться полным.
type PromoCode struct {
	ID                 int64
	Code               string
	Type               PromoCodeType
	BalanceBonusKopeks int64
	SubscriptionDays   int
	DiscountPercent    int
	DiscountHours      int
	MaxUses            int
	CurrentUses        int
	FirstPurchaseOnly  bool
	ValidUntil         *time.Time
	Payload            *string
	CreatedBy          *int64
	PromoGroupID       *int64
	CreatedAt          time.Time
}

// IsExpired истёк ли срок действия кода.
func (p *PromoCode) IsExpired(now time.Time) bool {
	return p.ValidUntil != nil && p.ValidUntil.Before(now)
}

// IsUsedUp исчерпан ли лимит использований.
func (p *PromoCode) IsUsedUp() bool {
	return p.CurrentUses >= p.MaxUses
}

// PromoCodeUse факт активации кода пользователем. Уникальность пары
// (promocode_id, user_id) обеспечивается на уровне БД и закрывает
// гонку повторной активации одним пользователем.
type PromoCodeUse struct {
	ID          int64
	PromoCodeID int64
	UserID      int64
	UsedAt      time.Time
}
