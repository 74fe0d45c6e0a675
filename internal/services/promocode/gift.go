package promocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/metrics"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/services/pricing"
	"github.com/nbelyakov/vpn-billing/internal/storage"
)

// giftPayloadVersion текущая версия схемы полезной нагрузки.
const giftPayloadVersion = 1

// GiftPayload условия подарочной подписки, зашитые в код.
// Схема версионируется: при декодировании неизвестная или отсутствующая
// версия отвергается, а не интерпретируется молча.
type GiftPayload struct {
	Version           int      `json:"version"`
	Days              int      `json:"days"`
	TrafficLimitBytes int64    `json:"traffic_limit_bytes"`
	DeviceLimit       int      `json:"device_limit"`
	SquadUUIDs        []string `json:"squad_uuids"`
	PurchasedBy       int64    `json:"purchased_by"`
}

func decodeGiftPayload(raw *string) (*GiftPayload, error) {
	if raw == nil || *raw == "" {
		return nil, models.ErrInvalidGiftPayload
	}
	var p GiftPayload
	if err := json.Unmarshal([]byte(*raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidGiftPayload, err)
	}
	if p.Version != giftPayloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", models.ErrInvalidGiftPayload, p.Version)
	}
	if p.Days <= 0 || p.DeviceLimit < 1 || p.TrafficLimitBytes < 0 {
		return nil, fmt.Errorf("%w: out of range terms", models.ErrInvalidGiftPayload)
	}
	return &p, nil
}

// Gift результат покупки подарочного кода. DeepLink ведёт получателя
// в бота сразу на активацию кода; пустой, если имя бота не настроено.
type Gift struct {
	Code        string
	PriceKopeks int64
	DeepLink    string
}

// CreateGift списывает стоимость подарка с баланса покупателя и
// выпускает одноразовый код с условиями подписки. Списание и выпуск
// атомарны: при нехватке средств или коллизии генерации ничего не
// сохраняется.
func (s *Service) CreateGift(ctx context.Context, purchaserID int64, params pricing.Params) (*Gift, error) {
	const op = "promocode.CreateGift"

	if err := s.pricer.Validate(ctx, params); err != nil {
		metrics.GiftOperations.WithLabelValues("purchase", "error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	price, err := s.pricer.Calculate(ctx, params)
	if err != nil {
		metrics.GiftOperations.WithLabelValues("purchase", "error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		gift      Gift
		purchaser *models.User
	)
	err = s.txm.Do(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		purchaser, err = uow.Users().GetByID(ctx, purchaserID)
		if err != nil {
			return err
		}
		if purchaser == nil {
			return models.ErrUserNotFound
		}

		if err := uow.Users().SubtractBalance(ctx, purchaser.ID, price); err != nil {
			return err
		}

		code, err := generateUnique(ctx, uow, PrefixGift)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(GiftPayload{
			Version:           giftPayloadVersion,
			Days:              params.PeriodDays,
			TrafficLimitBytes: int64(params.TrafficLimitGB) * 1024 * 1024 * 1024,
			DeviceLimit:       params.DeviceLimit,
			SquadUUIDs:        params.SquadUUIDs,
			PurchasedBy:       purchaser.ID,
		})
		if err != nil {
			return err
		}
		payloadStr := string(payload)

		if _, err := uow.PromoCodes().Create(ctx, &models.PromoCode{
			Code:      code,
			Type:      models.PromoCodeGift,
			MaxUses:   1,
			Payload:   &payloadStr,
			CreatedBy: &purchaser.ID,
		}); err != nil {
			return err
		}

		if _, err := uow.Ledger().Create(ctx, &models.LedgerEntry{
			UserID:       purchaser.ID,
			Type:         models.LedgerEntrySubscriptionPayment,
			AmountKopeks: -price,
			Description:  fmt.Sprintf("gift_%s", code),
			IsCompleted:  true,
		}); err != nil {
			return err
		}

		gift = Gift{Code: code, PriceKopeks: price}
		return nil
	})
	if err != nil {
		metrics.GiftOperations.WithLabelValues("purchase", "error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.GiftOperations.WithLabelValues("purchase", "ok").Inc()

	if s.botUsername != "" {
		gift.DeepLink = fmt.Sprintf("https://t.me/%s?start=%s", s.botUsername, gift.Code)
	}
	s.notifier.Send(models.Notification{
		TelegramID:  purchaser.TelegramID,
		TemplateKey: models.NotifyGiftPurchased,
		Args:        map[string]string{"code": gift.Code, "deep_link": gift.DeepLink},
	})
	s.log.Info("gift code issued",
		slog.Int64("purchaser_id", purchaserID),
		slog.Int64("price_kopeks", price))
	return &gift, nil
}

// activateGift применяет условия подарка к получателю. При активной
// подписке условия сливаются: максимум лимитов и объединение групп
// серверов, затем продление на зашитое число дней. Иначе создаётся
// новая подписка с условиями из кода.
func (s *Service) activateGift(ctx context.Context, uow storage.UnitOfWork, code *models.PromoCode, user *models.User, now time.Time) (*models.Subscription, error) {
	payload, err := decodeGiftPayload(code.Payload)
	if err != nil {
		return nil, err
	}

	sub, err := uow.Subscriptions().GetCurrentByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if sub != nil && sub.IsActive(now) {
		traffic := maxInt64(sub.TrafficLimitBytes, payload.TrafficLimitBytes)
		devices := sub.DeviceLimit
		if payload.DeviceLimit > devices {
			devices = payload.DeviceLimit
		}
		squads := unionSquads(sub.ConnectedSquads, payload.SquadUUIDs)
		if err := uow.Subscriptions().UpdateLimits(ctx, sub.ID, traffic, devices, squads); err != nil {
			return nil, err
		}
		endDate, err := uow.Subscriptions().Extend(ctx, sub.ID, payload.Days)
		if err != nil {
			return nil, err
		}
		sub.TrafficLimitBytes = traffic
		sub.DeviceLimit = devices
		sub.ConnectedSquads = squads
		sub.EndDate = endDate
		sub.Status = models.SubscriptionStatusActive
		sub.IsTrial = false
	} else {
		sub = &models.Subscription{
			UserID:            user.ID,
			Status:            models.SubscriptionStatusActive,
			StartDate:         now,
			EndDate:           now.AddDate(0, 0, payload.Days),
			TrafficLimitBytes: payload.TrafficLimitBytes,
			DeviceLimit:       payload.DeviceLimit,
			ConnectedSquads:   payload.SquadUUIDs,
		}
		sub.ID, err = uow.Subscriptions().Create(ctx, sub)
		if err != nil {
			return nil, err
		}
	}

	if err := uow.Users().MarkHadPaidSubscription(ctx, user.ID); err != nil {
		return nil, err
	}
	s.log.Debug("gift activated",
		sl.UserID(user.ID),
		slog.String("code", code.Code))
	return sub, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func unionSquads(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
