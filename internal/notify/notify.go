// Package notify отправляет уведомления пользователям через очередь
// RabbitMQ. Ошибки публикации логируются и не прерывают вызывающую
// операцию: уведомление вторично по отношению к изменению данных.
package notify

import (
	"log/slog"

	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/models"
)

type Publisher interface {
	Publish(message any) error
}

type Notifier struct {
	pub Publisher
	log *slog.Logger
}

func New(pub Publisher, log *slog.Logger) *Notifier {
	return &Notifier{pub: pub, log: log}
}

// Send публикует уведомление в очередь. Вызывается после commit.
func (n *Notifier) Send(msg models.Notification) {
	if msg.TelegramID <= 0 {
		// email-аккаунты имеют синтетический отрицательный telegram_id
		return
	}
	if err := n.pub.Publish(msg); err != nil {
		n.log.Error("failed to publish notification",
			sl.Err(err),
			slog.String("template", msg.TemplateKey),
			slog.Int64("telegram_id", msg.TelegramID))
	}
}
