// Package billing собирает основной сервис биллинга: хранилище, кэш,
// очередь уведомлений, клиент панели и HTTP-сервер.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/nbelyakov/vpn-billing/internal/cache"
	"github.com/nbelyakov/vpn-billing/internal/config"
	"github.com/nbelyakov/vpn-billing/internal/lib/jwt"
	"github.com/nbelyakov/vpn-billing/internal/migrations"
	"github.com/nbelyakov/vpn-billing/internal/notify"
	"github.com/nbelyakov/vpn-billing/internal/panel"
	"github.com/nbelyakov/vpn-billing/internal/rabbitmq"
	authservice "github.com/nbelyakov/vpn-billing/internal/services/auth"
	paymentservice "github.com/nbelyakov/vpn-billing/internal/services/payment"
	pricingservice "github.com/nbelyakov/vpn-billing/internal/services/pricing"
	promoservice "github.com/nbelyakov/vpn-billing/internal/services/promocode"
	reconcilerservice "github.com/nbelyakov/vpn-billing/internal/services/reconciler"
	"github.com/nbelyakov/vpn-billing/internal/storage"
	"github.com/nbelyakov/vpn-billing/internal/storage/repository"
)

type App struct {
	server *http.Server
	logger *slog.Logger
	db     *storage.Storage
	mqConn *amqp.Connection
	mqCh   *amqp.Channel
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}
	mqCh, err := rabbitmq.SetupChannel(mqConn, cfg.RabbitMQ.NotificationQueue)
	if err != nil {
		_ = mqConn.Close()
		return nil, err
	}

	txm := storage.NewManager(db, logger)
	notifier := notify.New(rabbitmq.NewPublisher(mqCh, cfg.RabbitMQ.NotificationQueue), logger)
	panelClient := panel.NewClient(cfg.Panel)
	syncer := panel.NewSyncer(panelClient, txm, logger)

	catalog := repository.NewServerGroups(db.DB)
	pricer := pricingservice.New(cfg.Pricing, catalog, cacheRedis, logger)
	promo := promoservice.New(txm, pricer, syncer, notifier, cfg.Trial, cfg.Telegram.BotUsername, logger)
	reconciler := reconcilerservice.New(txm, notifier, logger)
	payments := paymentservice.New(txm, notifier, logger)

	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)
	auth := authservice.New(txm, jwtMaker)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, db, auth, promo, reconciler, payments, pricer)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		mqConn: mqConn,
		mqCh:   mqCh,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.mqCh.Close()
		_ = a.mqConn.Close()
		_ = a.db.Close()
		return err
	}
}
