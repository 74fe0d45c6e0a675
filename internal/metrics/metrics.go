// Package metrics содержит счетчики Prometheus для бизнес-операций.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents считает обработанные события панели по типу и результату.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpn_billing_webhook_events_total",
		Help: "Processed provisioning panel webhook events.",
	}, []string{"event", "outcome"})

	// PromoRedemptions считает активации промокодов по типу и результату.
	PromoRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpn_billing_promo_redemptions_total",
		Help: "Promo code redemption attempts.",
	}, []string{"type", "outcome"})

	// GiftOperations считает покупки и активации подарочных подписок.
	GiftOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpn_billing_gift_operations_total",
		Help: "Gift subscription purchases and activations.",
	}, []string{"operation", "outcome"})
)
