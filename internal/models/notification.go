package models

// Notification — сообщение для отправки пользователю через Telegram.
// Публикуется в очередь RabbitMQ после фиксации транзакции.
type Notification struct {
	TelegramID  int64             `json:"telegram_id"`
	TemplateKey string            `json:"template_key"`
	Args        map[string]string `json:"args,omitempty"`
}

// Ключи шаблонов уведомлений.
const (
	NotifySubscriptionExpired  = "subscription_expired"
	NotifyTrafficLimitReached  = "traffic_limit_reached"
	NotifyTrafficReset         = "traffic_reset"
	NotifyStatusChanged        = "status_changed"
	NotifyPromoApplied         = "promo_applied"
	NotifyGiftActivated        = "gift_activated"
	NotifyGiftPurchased        = "gift_purchased"
	NotifyDepositCredited      = "deposit_credited"
)
