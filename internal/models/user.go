// Package models содержит доменные структуры биллингового ядра:
// пользователи, подписки, записи финансового журнала и промокоды.
// Все денежные суммы хранятся в копейках (int64), даты — в time.Time (UTC).
package models

import "time"

// UserStatus статус пользователя.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDeleted   UserStatus = "deleted"
)

// User пользователь сервиса. Внешним идентификатором служит TelegramID;
// для аккаунтов, зарегистрированных по email, выделяется синтетический
// отрицательный TelegramID. Пользователи никогда не удаляются физически.
type User struct {
	ID                     int64
	TelegramID             int64
	Username               string
	Email                  *string
	PasswordHash           *string
	Status                 UserStatus
	BalanceKopeks          int64
	HasHadPaidSubscription bool
	DiscountPercent        int
	DiscountExpiresAt      *time.Time
	DiscountSource         string
	ReferralCode           string
	PanelUUID              *string
	PromoGroupID           *int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasActiveDiscount сообщает, есть ли у пользователя неистёкшая скидка.
func (u *User) HasActiveDiscount(now time.Time) bool {
	if u.DiscountPercent <= 0 {
		return false
	}
	return u.DiscountExpiresAt == nil || u.DiscountExpiresAt.After(now)
}
