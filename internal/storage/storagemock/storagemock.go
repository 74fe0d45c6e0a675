// Package storagemock содержит моки репозиториев и единицы работы
// для юнит-тестов сервисов.
package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/storage"
)

// Users мок UserRepository.
type Users struct{ mock.Mock }

func (m *Users) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *Users) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	args := m.Called(ctx, telegramID)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *Users) GetByPanelUUID(ctx context.Context, panelUUID string) (*models.User, error) {
	args := m.Called(ctx, panelUUID)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *Users) Create(ctx context.Context, user *models.User) (int64, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Users) AddBalance(ctx context.Context, userID, amountKopeks int64) error {
	return m.Called(ctx, userID, amountKopeks).Error(0)
}

func (m *Users) SubtractBalance(ctx context.Context, userID, amountKopeks int64) error {
	return m.Called(ctx, userID, amountKopeks).Error(0)
}

func (m *Users) SetStatus(ctx context.Context, userID int64, status models.UserStatus) error {
	return m.Called(ctx, userID, status).Error(0)
}

func (m *Users) MarkHadPaidSubscription(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *Users) SetDiscount(ctx context.Context, userID int64, percent int, expiresAt *time.Time, source string) error {
	return m.Called(ctx, userID, percent, expiresAt, source).Error(0)
}

func (m *Users) SetPanelUUID(ctx context.Context, userID int64, panelUUID string) error {
	return m.Called(ctx, userID, panelUUID).Error(0)
}

func (m *Users) SetPromoGroup(ctx context.Context, userID, groupID int64) error {
	return m.Called(ctx, userID, groupID).Error(0)
}

func (m *Users) NextSyntheticTelegramID(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Subscriptions мок SubscriptionRepository.
type Subscriptions struct{ mock.Mock }

func (m *Subscriptions) GetCurrentByUserID(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if v := args.Get(0); v != nil {
		return v.(*models.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Subscriptions) Create(ctx context.Context, sub *models.Subscription) (int64, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Subscriptions) Extend(ctx context.Context, subID int64, days int) (time.Time, error) {
	args := m.Called(ctx, subID, days)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *Subscriptions) SetStatus(ctx context.Context, subID int64, status models.SubscriptionStatus) error {
	return m.Called(ctx, subID, status).Error(0)
}

func (m *Subscriptions) UpdateTraffic(ctx context.Context, subID int64, usedBytes int64) error {
	return m.Called(ctx, subID, usedBytes).Error(0)
}

func (m *Subscriptions) UpdateLimits(ctx context.Context, subID int64, trafficLimitBytes int64, deviceLimit int, squads []string) error {
	return m.Called(ctx, subID, trafficLimitBytes, deviceLimit, squads).Error(0)
}

func (m *Subscriptions) SetEndDate(ctx context.Context, subID int64, endDate time.Time) error {
	return m.Called(ctx, subID, endDate).Error(0)
}

func (m *Subscriptions) SetLastWebhookUpdate(ctx context.Context, subID int64, ts time.Time) error {
	return m.Called(ctx, subID, ts).Error(0)
}

// Ledger мок LedgerRepository.
type Ledger struct{ mock.Mock }

func (m *Ledger) Create(ctx context.Context, entry *models.LedgerEntry) (int64, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Ledger) GetByExternalID(ctx context.Context, externalID string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, externalID)
	if v := args.Get(0); v != nil {
		return v.(*models.LedgerEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Ledger) MarkCompleted(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// PromoCodes мок PromoCodeRepository.
type PromoCodes struct{ mock.Mock }

func (m *PromoCodes) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	args := m.Called(ctx, code)
	if v := args.Get(0); v != nil {
		return v.(*models.PromoCode), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PromoCodes) Create(ctx context.Context, code *models.PromoCode) (int64, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PromoCodes) HasUse(ctx context.Context, codeID, userID int64) (bool, error) {
	args := m.Called(ctx, codeID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *PromoCodes) RegisterUse(ctx context.Context, codeID, userID int64) error {
	return m.Called(ctx, codeID, userID).Error(0)
}

func (m *PromoCodes) IncrementUses(ctx context.Context, codeID int64) error {
	return m.Called(ctx, codeID).Error(0)
}

// ServerGroups мок ServerGroupRepository.
type ServerGroups struct{ mock.Mock }

func (m *ServerGroups) ListActive(ctx context.Context) ([]*models.ServerGroup, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*models.ServerGroup), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ServerGroups) GetRandomTrialEligible(ctx context.Context) (*models.ServerGroup, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*models.ServerGroup), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ServerGroups) GetByUUIDs(ctx context.Context, uuids []string) ([]*models.ServerGroup, error) {
	args := m.Called(ctx, uuids)
	if v := args.Get(0); v != nil {
		return v.([]*models.ServerGroup), args.Error(1)
	}
	return nil, args.Error(1)
}

// UnitOfWork объединяет моки репозиториев.
type UnitOfWork struct {
	UsersMock         Users
	SubscriptionsMock Subscriptions
	LedgerMock        Ledger
	PromoCodesMock    PromoCodes
	ServerGroupsMock  ServerGroups
}

func (u *UnitOfWork) Users() storage.UserRepository                 { return &u.UsersMock }
func (u *UnitOfWork) Subscriptions() storage.SubscriptionRepository { return &u.SubscriptionsMock }
func (u *UnitOfWork) Ledger() storage.LedgerRepository              { return &u.LedgerMock }
func (u *UnitOfWork) PromoCodes() storage.PromoCodeRepository       { return &u.PromoCodesMock }
func (u *UnitOfWork) ServerGroups() storage.ServerGroupRepository   { return &u.ServerGroupsMock }

// AssertExpectations проверяет ожидания всех вложенных моков.
func (u *UnitOfWork) AssertExpectations(t mock.TestingT) {
	u.UsersMock.AssertExpectations(t)
	u.SubscriptionsMock.AssertExpectations(t)
	u.LedgerMock.AssertExpectations(t)
	u.PromoCodesMock.AssertExpectations(t)
	u.ServerGroupsMock.AssertExpectations(t)
}

// TxManager исполняет функцию на переданной единице работы без
// настоящей транзакции.
type TxManager struct {
	UOW *UnitOfWork
}

func (t *TxManager) Do(ctx context.Context, fn func(ctx context.Context, uow storage.UnitOfWork) error) error {
	return fn(ctx, t.UOW)
}

func userOrNil(v any) *models.User {
	if v == nil {
		return nil
	}
	return v.(*models.User)
}
