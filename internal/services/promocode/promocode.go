// Package promocode реализует движок активации кодов: одноразовые
// эффекты (бонус на баланс, дни подписки, триал, скидка) и
// двусторонний подарочный поток. Весь протокол активации выполняется
// в одной транзакции с единственным commit.
package promocode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbelyakov/vpn-billing/internal/config"
	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/metrics"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/services/pricing"
	"github.com/nbelyakov/vpn-billing/internal/storage"
)

type Notifier interface {
	Send(msg models.Notification)
}

// PanelSyncer доводит состояние подписки до панели после commit.
type PanelSyncer interface {
	SyncSubscription(ctx context.Context, user *models.User, sub *models.Subscription) error
}

// Pricer проверяет параметры подписки и считает цену.
type Pricer interface {
	Validate(ctx context.Context, params pricing.Params) error
	Calculate(ctx context.Context, params pricing.Params) (int64, error)
}

type Service struct {
	txm         storage.TxManager
	pricer      Pricer
	syncer      PanelSyncer
	notifier    Notifier
	trial       config.Trial
	botUsername string
	log         *slog.Logger
}

func New(txm storage.TxManager, pricer Pricer, syncer PanelSyncer, notifier Notifier, trial config.Trial, botUsername string, log *slog.Logger) *Service {
	return &Service{
		txm:         txm,
		pricer:      pricer,
		syncer:      syncer,
		notifier:    notifier,
		trial:       trial,
		botUsername: botUsername,
		log:         log,
	}
}

// Result итог активации кода.
type Result struct {
	Type    models.PromoCodeType
	Applied bool
	Message string
}

// Redeem активирует код для пользователя. Поиск, валидация, эффект,
// запись об использовании и инкремент счётчика выполняются в одной
// транзакции: любой сбой откатывает всю последовательность целиком.
func (s *Service) Redeem(ctx context.Context, codeStr string, userID int64) (*Result, error) {
	const op = "promocode.Redeem"

	var (
		result  Result
		user    *models.User
		syncSub *models.Subscription
		notes   []models.Notification
	)
	err := s.txm.Do(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		code, err := uow.PromoCodes().GetByCode(ctx, codeStr)
		if err != nil {
			return err
		}
		if code == nil {
			return models.ErrPromoCodeNotFound
		}
		result.Type = code.Type

		now := time.Now().UTC()
		if code.IsExpired(now) {
			return models.ErrPromoCodeExpired
		}
		if code.IsUsedUp() {
			return models.ErrPromoCodeAlreadyUsed
		}

		user, err = uow.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return models.ErrUserNotFound
		}

		used, err := uow.PromoCodes().HasUse(ctx, code.ID, user.ID)
		if err != nil {
			return err
		}
		if used {
			return models.ErrPromoCodeAlreadyUsed
		}
		if code.FirstPurchaseOnly && user.HasHadPaidSubscription {
			return models.ErrNotFirstPurchase
		}

		applied, msg, sub, err := s.applyEffect(ctx, uow, code, user, now)
		if err != nil {
			return err
		}
		result.Applied = applied
		result.Message = msg
		syncSub = sub
		if !applied {
			// информационный no-op: код не расходуется
			return nil
		}

		if err := uow.PromoCodes().RegisterUse(ctx, code.ID, user.ID); err != nil {
			return err
		}
		if err := uow.PromoCodes().IncrementUses(ctx, code.ID); err != nil {
			return err
		}
		if err := s.auditRedemption(ctx, uow, code, user); err != nil {
			return err
		}
		if code.PromoGroupID != nil && (user.PromoGroupID == nil || *user.PromoGroupID != *code.PromoGroupID) {
			if err := uow.Users().SetPromoGroup(ctx, user.ID, *code.PromoGroupID); err != nil {
				return err
			}
		}

		notes = append(notes, models.Notification{
			TelegramID:  user.TelegramID,
			TemplateKey: models.NotifyPromoApplied,
			Args:        map[string]string{"type": string(code.Type), "code": code.Code},
		})
		if code.Type == models.PromoCodeGift {
			notes[len(notes)-1].TemplateKey = models.NotifyGiftActivated
		}
		return nil
	})
	if err != nil {
		metrics.PromoRedemptions.WithLabelValues(string(result.Type), "error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.PromoRedemptions.WithLabelValues(string(result.Type), "ok").Inc()

	// побочные эффекты строго после commit
	if syncSub != nil {
		if err := s.syncer.SyncSubscription(ctx, user, syncSub); err != nil {
			s.log.Error("panel sync failed after redemption",
				slog.String("code", codeStr),
				slog.Int64("user_id", user.ID),
				sl.Err(err))
		}
	}
	for _, n := range notes {
		s.notifier.Send(n)
	}
	return &result, nil
}

// applyEffect применяет типоспецифичный эффект кода. Возвращает
// признак применения, сообщение для пользователя и подписку, которую
// нужно синхронизировать с панелью (nil, если синхронизация не нужна).
func (s *Service) applyEffect(ctx context.Context, uow storage.UnitOfWork, code *models.PromoCode, user *models.User, now time.Time) (bool, string, *models.Subscription, error) {
	switch code.Type {
	case models.PromoCodeBalanceBonus:
		if err := uow.Users().AddBalance(ctx, user.ID, code.BalanceBonusKopeks); err != nil {
			return false, "", nil, err
		}
		return true, fmt.Sprintf("balance credited with %d kopeks", code.BalanceBonusKopeks), nil, nil

	case models.PromoCodeSubscriptionDays:
		sub, err := s.grantDays(ctx, uow, user, code.SubscriptionDays, now)
		if err != nil {
			return false, "", nil, err
		}
		return true, fmt.Sprintf("subscription extended by %d days", code.SubscriptionDays), sub, nil

	case models.PromoCodeTrial:
		sub, err := uow.Subscriptions().GetCurrentByUserID(ctx, user.ID)
		if err != nil {
			return false, "", nil, err
		}
		if sub != nil {
			return false, "trial is available only to new users", nil, nil
		}
		created, err := s.createTrial(ctx, uow, user, now)
		if err != nil {
			return false, "", nil, err
		}
		return true, fmt.Sprintf("trial activated for %d days", s.trial.DurationDays), created, nil

	case models.PromoCodeDiscount:
		msg, err := s.grantDiscount(ctx, uow, code, user, now)
		if err != nil {
			return false, "", nil, err
		}
		return true, msg, nil, nil

	case models.PromoCodeGift:
		sub, err := s.activateGift(ctx, uow, code, user, now)
		if err != nil {
			return false, "", nil, err
		}
		return true, "gift subscription activated", sub, nil
	}
	return false, "", nil, fmt.Errorf("unknown promocode type %q", code.Type)
}

// grantDays продлевает текущую подписку от max(now, endDate) либо
// создаёт новую с запасной триальной группой серверов.
func (s *Service) grantDays(ctx context.Context, uow storage.UnitOfWork, user *models.User, days int, now time.Time) (*models.Subscription, error) {
	sub, err := uow.Subscriptions().GetCurrentByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		endDate, err := uow.Subscriptions().Extend(ctx, sub.ID, days)
		if err != nil {
			return nil, err
		}
		sub.EndDate = endDate
		sub.Status = models.SubscriptionStatusActive
		sub.IsTrial = false
	} else {
		group, err := uow.ServerGroups().GetRandomTrialEligible(ctx)
		if err != nil {
			return nil, err
		}
		var squads []string
		if group != nil {
			squads = []string{group.UUID}
		}
		sub = &models.Subscription{
			UserID:            user.ID,
			Status:            models.SubscriptionStatusActive,
			StartDate:         now,
			EndDate:           now.AddDate(0, 0, days),
			TrafficLimitBytes: s.trial.TrafficLimitBytes,
			DeviceLimit:       s.trial.DeviceLimit,
			ConnectedSquads:   squads,
		}
		sub.ID, err = uow.Subscriptions().Create(ctx, sub)
		if err != nil {
			return nil, err
		}
	}
	if err := uow.Users().MarkHadPaidSubscription(ctx, user.ID); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) createTrial(ctx context.Context, uow storage.UnitOfWork, user *models.User, now time.Time) (*models.Subscription, error) {
	group, err := uow.ServerGroups().GetRandomTrialEligible(ctx)
	if err != nil {
		return nil, err
	}
	var squads []string
	if group != nil {
		squads = []string{group.UUID}
	}
	sub := &models.Subscription{
		UserID:            user.ID,
		Status:            models.SubscriptionStatusActive,
		IsTrial:           true,
		StartDate:         now,
		EndDate:           now.AddDate(0, 0, s.trial.DurationDays),
		TrafficLimitBytes: s.trial.TrafficLimitBytes,
		DeviceLimit:       s.trial.DeviceLimit,
		ConnectedSquads:   squads,
	}
	sub.ID, err = uow.Subscriptions().Create(ctx, sub)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) grantDiscount(ctx context.Context, uow storage.UnitOfWork, code *models.PromoCode, user *models.User, now time.Time) (string, error) {
	if code.DiscountPercent < 1 || code.DiscountPercent > 100 {
		return "", fmt.Errorf("discount percent %d: %w", code.DiscountPercent, models.ErrInvalidGiftParams)
	}
	if user.HasActiveDiscount(now) {
		return "", models.ErrActiveDiscountExists
	}
	var expiresAt *time.Time
	if code.DiscountHours > 0 {
		t := now.Add(time.Duration(code.DiscountHours) * time.Hour)
		expiresAt = &t
	}
	if err := uow.Users().SetDiscount(ctx, user.ID, code.DiscountPercent, expiresAt, "promocode"); err != nil {
		return "", err
	}
	return fmt.Sprintf("discount %d%% granted", code.DiscountPercent), nil
}

// auditRedemption оставляет запись в журнале для каждой активации,
// включая эффекты без движения денег.
func (s *Service) auditRedemption(ctx context.Context, uow storage.UnitOfWork, code *models.PromoCode, user *models.User) error {
	var amount int64
	entryType := models.LedgerEntrySubscriptionPayment
	if code.Type == models.PromoCodeBalanceBonus {
		amount = code.BalanceBonusKopeks
		entryType = models.LedgerEntryDeposit
	}
	desc := fmt.Sprintf("promocode_%s", code.Code)
	if code.Type == models.PromoCodeGift {
		desc = fmt.Sprintf("gift_activation_%s", code.Code)
	}
	_, err := uow.Ledger().Create(ctx, &models.LedgerEntry{
		UserID:       user.ID,
		Type:         entryType,
		AmountKopeks: amount,
		Description:  desc,
		IsCompleted:  true,
	})
	return err
}
