// Package sender доставляет уведомления из очереди пользователям
// через Telegram Bot API.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nbelyakov/vpn-billing/internal/config"
	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/models"
)

const telegramAPIBase = "https://api.telegram.org"

// Шаблоны текстов уведомлений по ключу.
var templates = map[string]string{
	models.NotifySubscriptionExpired: "Ваша подписка истекла. Продлите её, чтобы восстановить доступ.",
	models.NotifyTrafficLimitReached: "Вы исчерпали лимит трафика по подписке.",
	models.NotifyTrafficReset:        "Счётчик трафика по вашей подписке сброшен.",
	models.NotifyStatusChanged:       "Статус вашей подписки изменился: %s.",
	models.NotifyPromoApplied:        "Промокод %s успешно применён.",
	models.NotifyGiftActivated:       "Подарочная подписка активирована. Приятного пользования!",
	models.NotifyGiftPurchased:       "Подарочный код готов: %s. Отправьте его получателю.",
	models.NotifyDepositCredited:     "Баланс пополнен на %s коп.",
}

type SenderService struct {
	botToken string
	apiBase  string
	client   *http.Client
	log      *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(cfg config.Telegram, log *slog.Logger) *SenderService {
	return &SenderService{
		botToken: cfg.BotToken,
		apiBase:  telegramAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// HandleMessage обрабатывает сообщение из очереди уведомлений.
// Используется как обработчик консьюмера RabbitMQ.
func (s *SenderService) HandleMessage(body []byte) error {
	var msg models.Notification
	if err := json.Unmarshal(body, &msg); err != nil {
		s.log.Error("failed to unmarshal notification", sl.Err(err))
		// сообщение с битым телом не возвращается в очередь
		return nil
	}
	if msg.TelegramID <= 0 {
		return nil
	}

	text := renderTemplate(msg)
	if err := s.sendTelegram(context.Background(), msg.TelegramID, text); err != nil {
		s.log.Error("failed to deliver notification",
			slog.Int64("telegram_id", msg.TelegramID),
			slog.String("template", msg.TemplateKey),
			sl.Err(err))
		return err
	}
	return nil
}

func renderTemplate(msg models.Notification) string {
	tpl, ok := templates[msg.TemplateKey]
	if !ok {
		return msg.TemplateKey
	}
	switch msg.TemplateKey {
	case models.NotifyStatusChanged:
		return fmt.Sprintf(tpl, msg.Args["status"])
	case models.NotifyPromoApplied, models.NotifyGiftPurchased:
		return fmt.Sprintf(tpl, msg.Args["code"])
	case models.NotifyDepositCredited:
		return fmt.Sprintf(tpl, msg.Args["amount"])
	}
	return tpl
}

func (s *SenderService) sendTelegram(ctx context.Context, chatID int64, text string) error {
	const op = "sender.sendTelegram"

	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: telegram returned %d: %s", op, resp.StatusCode, body)
	}
	return nil
}
