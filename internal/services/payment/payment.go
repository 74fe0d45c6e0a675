// Package payment зачисляет платежи провайдера на баланс пользователя.
// Колбэки провайдера могут дублироваться: идемпотентность обеспечивает
// внешний идентификатор платежа в журнале.
package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/storage"
)

type Notifier interface {
	Send(msg models.Notification)
}

type Service struct {
	txm      storage.TxManager
	notifier Notifier
	log      *slog.Logger
}

func New(txm storage.TxManager, notifier Notifier, log *slog.Logger) *Service {
	return &Service{txm: txm, notifier: notifier, log: log}
}

// Deposit описывает подтверждённый платёж провайдера.
type Deposit struct {
	ExternalID    string
	TelegramID    int64
	AmountKopeks  int64
	PaymentMethod string
}

// Credit зачисляет платёж на баланс. Повторная доставка того же
// ExternalID распознаётся по завершённой записи журнала и не приводит
// к двойному зачислению.
func (s *Service) Credit(ctx context.Context, dep Deposit) error {
	const op = "payment.Credit"

	if dep.ExternalID == "" || dep.AmountKopeks <= 0 {
		return fmt.Errorf("%s: invalid deposit %q", op, dep.ExternalID)
	}

	var user *models.User
	duplicate := false
	err := s.txm.Do(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		existing, err := uow.Ledger().GetByExternalID(ctx, dep.ExternalID)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsCompleted {
			duplicate = true
			return nil
		}

		user, err = uow.Users().GetByTelegramID(ctx, dep.TelegramID)
		if err != nil {
			return err
		}
		if user == nil {
			return models.ErrUserNotFound
		}

		if err := uow.Users().AddBalance(ctx, user.ID, dep.AmountKopeks); err != nil {
			return err
		}

		// Незавершённая запись с тем же external_id — повторная доставка
		// после сбоя: завершаем её вместо создания новой.
		if existing != nil {
			return uow.Ledger().MarkCompleted(ctx, existing.ID)
		}

		method := dep.PaymentMethod
		externalID := dep.ExternalID
		_, err = uow.Ledger().Create(ctx, &models.LedgerEntry{
			UserID:        user.ID,
			Type:          models.LedgerEntryDeposit,
			AmountKopeks:  dep.AmountKopeks,
			Description:   fmt.Sprintf("deposit %s", dep.ExternalID),
			PaymentMethod: &method,
			ExternalID:    &externalID,
			IsCompleted:   true,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if duplicate {
		s.log.Info("duplicate deposit ignored", slog.String("external_id", dep.ExternalID))
		return nil
	}

	s.log.Info("deposit credited",
		sl.UserID(user.ID),
		slog.Int64("amount_kopeks", dep.AmountKopeks),
		slog.String("external_id", dep.ExternalID))
	s.notifier.Send(models.Notification{
		TelegramID:  user.TelegramID,
		TemplateKey: models.NotifyDepositCredited,
		Args:        map[string]string{"amount": fmt.Sprintf("%d", dep.AmountKopeks)},
	})
	return nil
}
