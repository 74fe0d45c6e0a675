package models

import "time"

// LedgerEntryType тип записи финансового журнала.
type LedgerEntryType string

const (
	LedgerEntryDeposit             LedgerEntryType = "deposit"
	LedgerEntrySubscriptionPayment LedgerEntryType = "subscription_payment"
	LedgerEntryRefund              LedgerEntryType = "refund"
	LedgerEntryReferralReward      LedgerEntryType = "referral_reward"
)

// LedgerEntry запись журнала операций с балансом. Журнал append-only:
// записи не изменяются, кроме отметки о завершении. ExternalID служит
// ключом идемпотентности для операций, инициированных провайдером, —
// не более одной завершённой записи на один ExternalID.
type LedgerEntry struct {
	ID            int64
	UserID        int64
	Type          LedgerEntryType
	AmountKopeks  int64
	Description   string
	PaymentMethod *string
	ExternalID    *string
	IsCompleted   bool
	CompletedAt   *time.Time
	CreatedAt     time.Time
}
