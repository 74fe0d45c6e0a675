package models

// ServerGroup группа серверов (сквад) панели, к которой может быть
// подключена подписка. PriceKopeks — надбавка к цене за 30 дней.
type ServerGroup struct {
	ID              int64
	UUID            string
	Name            string
	CountryCode     string
	IsTrialEligible bool
	PriceKopeks     int64
	IsActive        bool
}
