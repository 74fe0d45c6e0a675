package panel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/storage"
)

// Syncer доводит локальное состояние подписки до панели. Вызывается
// после фиксации локальной транзакции; ошибка синхронизации не
// откатывает уже зафиксированные данные.
type Syncer struct {
	client *Client
	txm    storage.TxManager
	log    *slog.Logger
}

func NewSyncer(client *Client, txm storage.TxManager, log *slog.Logger) *Syncer {
	return &Syncer{client: client, txm: txm, log: log}
}

// SyncSubscription создаёт или обновляет учётную запись панели по
// текущему состоянию подписки. Если у пользователя ещё нет UUID
// панели, учётная запись заводится и UUID сохраняется локально.
func (s *Syncer) SyncSubscription(ctx context.Context, user *models.User, sub *models.Subscription) error {
	const op = "panel.SyncSubscription"

	if user.PanelUUID == nil {
		req := CreateUserRequest{
			Username:          user.Username,
			Status:            "ACTIVE",
			ExpireAt:          FormatExpireAt(sub.EndDate),
			TrafficLimitBytes: sub.TrafficLimitBytes,
			HWIDDeviceLimit:   sub.DeviceLimit,
			ActiveSquads:      sub.ConnectedSquads,
		}
		if user.TelegramID > 0 {
			tid := user.TelegramID
			req.TelegramID = &tid
		}
		remote, err := s.client.CreateUser(ctx, req)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := s.savePanelUUID(ctx, user.ID, remote.UUID); err != nil {
			s.log.Error("failed to store panel uuid",
				sl.UserID(user.ID),
				slog.String("uuid", remote.UUID),
				sl.Err(err))
		}
		return nil
	}

	_, err := s.client.UpdateUser(ctx, UpdateUserRequest{
		UUID:              *user.PanelUUID,
		Status:            panelStatus(sub),
		ExpireAt:          FormatExpireAt(sub.EndDate),
		TrafficLimitBytes: &sub.TrafficLimitBytes,
		HWIDDeviceLimit:   &sub.DeviceLimit,
		ActiveSquads:      sub.ConnectedSquads,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Syncer) savePanelUUID(ctx context.Context, userID int64, uuid string) error {
	return s.txm.Do(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		return uow.Users().SetPanelUUID(ctx, userID, uuid)
	})
}

func panelStatus(sub *models.Subscription) string {
	switch sub.Status {
	case models.SubscriptionStatusActive:
		return "ACTIVE"
	case models.SubscriptionStatusExpired:
		return "EXPIRED"
	default:
		return "DISABLED"
	}
}
