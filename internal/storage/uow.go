package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/storage/repository"
)

// UserRepository операции над пользователями внутри транзакции.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetByPanelUUID(ctx context.Context, panelUUID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (int64, error)
	AddBalance(ctx context.Context, userID, amountKopeks int64) error
	SubtractBalance(ctx context.Context, userID, amountKopeks int64) error
	SetStatus(ctx context.Context, userID int64, status models.UserStatus) error
	MarkHadPaidSubscription(ctx context.Context, userID int64) error
	SetDiscount(ctx context.Context, userID int64, percent int, expiresAt *time.Time, source string) error
	SetPanelUUID(ctx context.Context, userID int64, panelUUID string) error
	SetPromoGroup(ctx context.Context, userID, groupID int64) error
	NextSyntheticTelegramID(ctx context.Context) (int64, error)
}

// SubscriptionRepository операции над подписками внутри транзакции.
type SubscriptionRepository interface {
	GetCurrentByUserID(ctx context.Context, userID int64) (*models.Subscription, error)
	Create(ctx context.Context, sub *models.Subscription) (int64, error)
	Extend(ctx context.Context, subID int64, days int) (time.Time, error)
	SetStatus(ctx context.Context, subID int64, status models.SubscriptionStatus) error
	UpdateTraffic(ctx context.Context, subID int64, usedBytes int64) error
	UpdateLimits(ctx context.Context, subID int64, trafficLimitBytes int64, deviceLimit int, squads []string) error
	SetEndDate(ctx context.Context, subID int64, endDate time.Time) error
	SetLastWebhookUpdate(ctx context.Context, subID int64, ts time.Time) error
}

// LedgerRepository операции над финансовым журналом внутри транзакции.
type LedgerRepository interface {
	Create(ctx context.Context, entry *models.LedgerEntry) (int64, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.LedgerEntry, error)
	MarkCompleted(ctx context.Context, id int64) error
}

// PromoCodeRepository операции над промокодами внутри транзакции.
type PromoCodeRepository interface {
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	Create(ctx context.Context, code *models.PromoCode) (int64, error)
	HasUse(ctx context.Context, codeID, userID int64) (bool, error)
	RegisterUse(ctx context.Context, codeID, userID int64) error
	IncrementUses(ctx context.Context, codeID int64) error
}

// ServerGroupRepository чтение каталога групп серверов.
type ServerGroupRepository interface {
	ListActive(ctx context.Context) ([]*models.ServerGroup, error)
	GetRandomTrialEligible(ctx context.Context) (*models.ServerGroup, error)
	GetByUUIDs(ctx context.Context, uuids []string) ([]*models.ServerGroup, error)
}

// UnitOfWork выдаёт репозитории, привязанные к одной транзакции.
// Репозитории не делают commit: вся накопленная работа фиксируется
// единственным commit в TxManager.Do. Экземпляр принадлежит одной
// логической операции и не может разделяться между горутинами.
type UnitOfWork interface {
	Users() UserRepository
	Subscriptions() SubscriptionRepository
	Ledger() LedgerRepository
	PromoCodes() PromoCodeRepository
	ServerGroups() ServerGroupRepository
}

// TxManager исполняет функцию внутри одной транзакции.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// Manager реализация TxManager поверх *sql.DB.
type Manager struct {
	db  *sql.DB
	log *slog.Logger
}

// NewManager создаёт менеджер транзакций.
func NewManager(s *Storage, log *slog.Logger) *Manager {
	return &Manager{db: s.DB, log: log}
}

// Do открывает транзакцию, передаёт fn единицу работы и фиксирует
// изменения ровно один раз при nil-ошибке. Любая ошибка (или паника)
// внутри fn приводит к откату всей накопленной работы; частичное
// применение не наблюдаемо. Сессия освобождается в любом исходе.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	const op = "storage.Manager.Do"

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			m.log.Warn("rollback failed", sl.Err(rbErr))
		}
	}()

	uow := &txUnitOfWork{tx: tx}
	if err = fn(ctx, uow); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	committed = true
	return nil
}

// txUnitOfWork лениво привязывает репозитории к открытой транзакции.
type txUnitOfWork struct {
	tx *sql.Tx

	users  *repository.Users
	subs   *repository.Subscriptions
	ledger *repository.Ledger
	codes  *repository.PromoCodes
	groups *repository.ServerGroups
}

func (u *txUnitOfWork) Users() UserRepository {
	if u.users == nil {
		u.users = repository.NewUsers(u.tx)
	}
	return u.users
}

func (u *txUnitOfWork) Subscriptions() SubscriptionRepository {
	if u.subs == nil {
		u.subs = repository.NewSubscriptions(u.tx)
	}
	return u.subs
}

func (u *txUnitOfWork) Ledger() LedgerRepository {
	if u.ledger == nil {
		u.ledger = repository.NewLedger(u.tx)
	}
	return u.ledger
}

func (u *txUnitOfWork) PromoCodes() PromoCodeRepository {
	if u.codes == nil {
		u.codes = repository.NewPromoCodes(u.tx)
	}
	return u.codes
}

func (u *txUnitOfWork) ServerGroups() ServerGroupRepository {
	if u.groups == nil {
		u.groups = repository.NewServerGroups(u.tx)
	}
	return u.groups
}
