// Package sender собирает сервис доставки уведомлений: подключение к
// очереди и консьюмер, передающий сообщения в Telegram.
package sender

import (
	"context"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/nbelyakov/vpn-billing/internal/config"
	"github.com/nbelyakov/vpn-billing/internal/rabbitmq"
	senderservice "github.com/nbelyakov/vpn-billing/internal/services/sender"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	queueName     string
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.NotificationQueue)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	senderService := senderservice.NewSenderService(cfg.Telegram, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		queueName:     cfg.RabbitMQ.NotificationQueue,
		senderService: senderService,
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	if err := rabbitmq.ConsumerMessage(ctx, a.ch, a.queueName, a.senderService.HandleMessage); err != nil {
		a.logger.Error("failed to start notifications consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
