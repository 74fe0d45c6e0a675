package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nbelyakov/vpn-billing/internal/migrations"
	"github.com/nbelyakov/vpn-billing/internal/models"
)

// setupTestDatabase поднимает контейнер PostgreSQL и накатывает миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var storage *Storage
	for range 10 {
		storage, err = New(dsn)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to connect after retries")

	migrationsPath, err := filepath.Abs("../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	cleanup := func() {
		_ = storage.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return storage, cleanup
}

func newTestManager(s *Storage) *Manager {
	return NewManager(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func createTestUser(t *testing.T, txm *Manager, telegramID, balanceKopeks int64) int64 {
	t.Helper()
	var userID int64
	err := txm.Do(context.Background(), func(ctx context.Context, uow UnitOfWork) error {
		var err error
		userID, err = uow.Users().Create(ctx, &models.User{
			TelegramID:    telegramID,
			Username:      "tester",
			Status:        models.UserStatusActive,
			BalanceKopeks: balanceKopeks,
			ReferralCode:  fmt.Sprintf("REF%d", telegramID),
		})
		return err
	})
	require.NoError(t, err)
	return userID
}

func userBalance(t *testing.T, s *Storage, userID int64) int64 {
	t.Helper()
	var balance int64
	err := s.DB.QueryRow("SELECT balance_kopeks FROM users WHERE id = $1", userID).Scan(&balance)
	require.NoError(t, err)
	return balance
}

func TestSubtractBalanceGuard(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	txm := newTestManager(storage)
	ctx := context.Background()

	userID := createTestUser(t, txm, 1001, 5000)

	err := txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		return uow.Users().SubtractBalance(ctx, userID, 3000)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), userBalance(t, storage, userID))

	err = txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		return uow.Users().SubtractBalance(ctx, userID, 3000)
	})
	require.ErrorIs(t, err, models.ErrInsufficientBalance)
	assert.Equal(t, int64(2000), userBalance(t, storage, userID))
}

func TestRegisterUseUniquePerUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	txm := newTestManager(storage)
	ctx := context.Background()

	userID := createTestUser(t, txm, 1002, 0)

	var codeID int64
	err := txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		codeID, err = uow.PromoCodes().Create(ctx, &models.PromoCode{
			Code:    "PROMO_UNIQUE1",
			Type:    models.PromoCodeBalanceBonus,
			MaxUses: 10,
		})
		if err != nil {
			return err
		}
		return uow.PromoCodes().RegisterUse(ctx, codeID, userID)
	})
	require.NoError(t, err)

	err = txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		return uow.PromoCodes().RegisterUse(ctx, codeID, userID)
	})
	require.ErrorIs(t, err, models.ErrPromoCodeAlreadyUsed)
}

func TestIncrementUsesGuard(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	txm := newTestManager(storage)
	ctx := context.Background()

	var codeID int64
	err := txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		codeID, err = uow.PromoCodes().Create(ctx, &models.PromoCode{
			Code:    "GIFT_SINGLEUSE",
			Type:    models.PromoCodeGift,
			MaxUses: 1,
		})
		if err != nil {
			return err
		}
		return uow.PromoCodes().IncrementUses(ctx, codeID)
	})
	require.NoError(t, err)

	err = txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		return uow.PromoCodes().IncrementUses(ctx, codeID)
	})
	require.ErrorIs(t, err, models.ErrPromoCodeAlreadyUsed)
}

func TestExtendFromGreatest(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	txm := newTestManager(storage)
	ctx := context.Background()

	userID := createTestUser(t, txm, 1003, 0)
	now := time.Now().UTC()

	// истёкшая подписка продлевается от текущего момента, не от end_date
	var subID int64
	err := txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		subID, err = uow.Subscriptions().Create(ctx, &models.Subscription{
			UserID:    userID,
			Status:    models.SubscriptionStatusExpired,
			StartDate: now.AddDate(0, 0, -40),
			EndDate:   now.AddDate(0, 0, -10),
		})
		return err
	})
	require.NoError(t, err)

	var endDate time.Time
	err = txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		endDate, err = uow.Subscriptions().Extend(ctx, subID, 30)
		return err
	})
	require.NoError(t, err)
	assert.WithinDuration(t, now.AddDate(0, 0, 30), endDate, time.Minute)

	// активная подписка продлевается от своего end_date
	err = txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		endDate, err = uow.Subscriptions().Extend(ctx, subID, 15)
		return err
	})
	require.NoError(t, err)
	assert.WithinDuration(t, now.AddDate(0, 0, 45), endDate, time.Minute)

	sub, err := currentSubscription(ctx, txm, userID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.False(t, sub.IsTrial)
}

func currentSubscription(ctx context.Context, txm *Manager, userID int64) (*models.Subscription, error) {
	var sub *models.Subscription
	err := txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		sub, err = uow.Subscriptions().GetCurrentByUserID(ctx, userID)
		return err
	})
	return sub, err
}

func TestManagerRollsBackOnError(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	txm := newTestManager(storage)
	ctx := context.Background()

	userID := createTestUser(t, txm, 1004, 10000)

	err := txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if err := uow.Users().AddBalance(ctx, userID, 5000); err != nil {
			return err
		}
		if _, err := uow.Ledger().Create(ctx, &models.LedgerEntry{
			UserID:       userID,
			Type:         models.LedgerEntryDeposit,
			AmountKopeks: 5000,
			IsCompleted:  true,
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	// вся накопленная работа откатилась целиком
	assert.Equal(t, int64(10000), userBalance(t, storage, userID))
	var entries int
	require.NoError(t, storage.DB.QueryRow(
		"SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1", userID).Scan(&entries))
	assert.Equal(t, 0, entries)
}

func TestDuplicateCompletedExternalID(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	txm := newTestManager(storage)
	ctx := context.Background()

	userID := createTestUser(t, txm, 1005, 0)
	entry := func() *models.LedgerEntry {
		externalID := "pay-dup-1"
		return &models.LedgerEntry{
			UserID:       userID,
			Type:         models.LedgerEntryDeposit,
			AmountKopeks: 5000,
			ExternalID:   &externalID,
			IsCompleted:  true,
		}
	}

	err := txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		_, err := uow.Ledger().Create(ctx, entry())
		return err
	})
	require.NoError(t, err)

	// частичный уникальный индекс не допускает вторую завершённую запись
	err = txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		_, err := uow.Ledger().Create(ctx, entry())
		return err
	})
	require.Error(t, err)

	found, err := lookupByExternalID(ctx, txm, "pay-dup-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.IsCompleted)
}

func lookupByExternalID(ctx context.Context, txm *Manager, externalID string) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := txm.Do(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		entry, err = uow.Ledger().GetByExternalID(ctx, externalID)
		return err
	})
	return entry, err
}

func TestCheckDatabaseReady(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	require.NoError(t, storage.CheckDatabaseReady(context.Background()))
}
