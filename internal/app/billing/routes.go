package billing

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	_ "github.com/nbelyakov/vpn-billing/docs"
	"github.com/nbelyakov/vpn-billing/internal/config"
	"github.com/nbelyakov/vpn-billing/internal/http/handlers/auth/login"
	"github.com/nbelyakov/vpn-billing/internal/http/handlers/auth/register"
	"github.com/nbelyakov/vpn-billing/internal/http/handlers/gift/giftcreate"
	"github.com/nbelyakov/vpn-billing/internal/http/handlers/health"
	"github.com/nbelyakov/vpn-billing/internal/http/handlers/promocode/redeem"
	"github.com/nbelyakov/vpn-billing/internal/http/handlers/servergroup/grouplist"
	"github.com/nbelyakov/vpn-billing/internal/http/handlers/webhook/depositwebhook"
	"github.com/nbelyakov/vpn-billing/internal/http/handlers/webhook/panelwebhook"
	"github.com/nbelyakov/vpn-billing/internal/http/middlewarectx"
	authservice "github.com/nbelyakov/vpn-billing/internal/services/auth"
	paymentservice "github.com/nbelyakov/vpn-billing/internal/services/payment"
	pricingservice "github.com/nbelyakov/vpn-billing/internal/services/pricing"
	promoservice "github.com/nbelyakov/vpn-billing/internal/services/promocode"
	reconcilerservice "github.com/nbelyakov/vpn-billing/internal/services/reconciler"
	"github.com/nbelyakov/vpn-billing/internal/storage"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	cfg *config.Config,
	db *storage.Storage,
	auth *authservice.Service,
	promo *promoservice.Service,
	reconciler *reconcilerservice.Service,
	payments *paymentservice.Service,
	pricer *pricingservice.Service,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	limiter := rate.NewLimiter(10, 30)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/auth/register", register.New(logger, auth).ServeHTTP)
		r.Post("/auth/login", login.New(logger, auth).ServeHTTP)
		r.Get("/health", health.New(logger, db).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(auth, logger))
			r.Use(middlewarectx.RateLimitMiddleware(limiter, logger))
			r.Post("/promocodes/redeem", redeem.New(logger, promo).ServeHTTP)
			r.Post("/gifts", giftcreate.New(logger, promo).ServeHTTP)
			r.Get("/servers", grouplist.New(logger, pricer).ServeHTTP)
		})

		// Вебхуки аутентифицируются подписью, не JWT
		panelHook := panelwebhook.New(logger, reconciler, cfg.Panel.WebhookSecret)
		r.Post("/webhooks/panel", panelHook.ServeHTTP)
		r.Get("/webhooks/panel/health", panelHook.ServeHealth)
		r.Post("/webhooks/payment", depositwebhook.New(logger, payments, cfg.Payments.WebhookSecret).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
