package models

import "time"

// SubscriptionStatus статус подписки.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusDisabled SubscriptionStatus = "disabled"
)

// Subscription подписка пользователя. Исторические записи сохраняются,
// актуальной считается последняя по дате создания. Жизненный цикл
// управляется статусом, записи не удаляются.
type Subscription struct {
	ID                  int64
	UserID              int64
	Status              SubscriptionStatus
	IsTrial             bool
	StartDate           time.Time
	EndDate             time.Time
	TrafficLimitBytes   int64 // 0 — безлимит
	TrafficUsedBytes    int64
	DeviceLimit         int
	ConnectedSquads     []string
	TariffID            *int64
	AutopayEnabled      bool
	AutopayDaysBefore   int
	LastWebhookUpdateAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsActive подписка активна и не истекла.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate.After(now)
}

// HasSquad проверяет подключение группы серверов.
func (s *Subscription) HasSquad(uuid string) bool {
	for _, sq := range s.ConnectedSquads {
		if sq == uuid {
			return true
		}
	}
	return false
}
