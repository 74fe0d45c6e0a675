// Package reconciler сводит события панели управления с локальным
// состоянием подписок. События могут приходить повторно и не по
// порядку, обработчики безопасны к повторному применению.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/metrics"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/storage"
)

// Типы событий панели.
const (
	EventUserCreated             = "user.created"
	EventUserUpdated             = "user.updated"
	EventUserDeleted             = "user.deleted"
	EventUserStatusChanged       = "user.status_changed"
	EventUserExpired             = "user.expired"
	EventUserTrafficLimitReached = "user.traffic_limit_reached"
	EventUserTrafficReset        = "user.traffic_reset"
)

// Event входящее событие панели.
type Event struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
	Version   string    `json:"version,omitempty"`
}

// EventData поля пользователя панели, присутствующие в событии.
// Указатели отличают отсутствующее поле от нулевого значения.
type EventData struct {
	UUID              string     `json:"uuid"`
	Username          string     `json:"username,omitempty"`
	Status            string     `json:"status,omitempty"`
	ExpireAt          *time.Time `json:"expireAt,omitempty"`
	TrafficLimitBytes *int64     `json:"trafficLimitBytes,omitempty"`
	UsedTrafficBytes  *int64     `json:"usedTrafficBytes,omitempty"`
	HWIDDeviceLimit   *int       `json:"hwidDeviceLimit,omitempty"`
}

// Result итог обработки события, возвращается отправителю.
type Result struct {
	Success     bool      `json:"success"`
	Event       string    `json:"event"`
	Message     string    `json:"message"`
	ProcessedAt time.Time `json:"processed_at"`
}

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

// Process применяет событие к локальному состоянию в одной транзакции
// и после commit отправляет уведомление. Ошибка обработчика даёт
// Success=false, но не ошибку наружу: отправитель получает квитанцию
// и не ретраит перманентно падающее событие.
func (s *Service) Process(ctx context.Context, ev Event) Result {
	res := Result{Event: ev.Event, ProcessedAt: time.Now().UTC()}

	if !knownEvent(ev.Event) {
		res.Success = true
		res.Message = fmt.Sprintf("unrecognized event type: %s", ev.Event)
		metrics.WebhookEvents.WithLabelValues(ev.Event, "unrecognized").Inc()
		return res
	}

	var note *models.Notification
	err := s.txm.Do(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		msg, n, err := s.apply(ctx, uow, ev)
		if err != nil {
			return err
		}
		res.Message = msg
		note = n
		return nil
	})
	if err != nil {
		s.log.Error("webhook event failed",
			slog.String("event", ev.Event),
			slog.String("uuid", ev.Data.UUID),
			sl.Err(err))
		res.Success = false
		res.Message = err.Error()
		metrics.WebhookEvents.WithLabelValues(ev.Event, "error").Inc()
		return res
	}

	res.Success = true
	metrics.WebhookEvents.WithLabelValues(ev.Event, "ok").Inc()

	// уведомление отправляется только после фиксации транзакции
	if note != nil {
		s.notifier.Send(*note)
	}
	return res
}

// SupportedEvents возвращает список обрабатываемых типов событий.
func SupportedEvents() []string {
	return []string{
		EventUserCreated, EventUserUpdated, EventUserDeleted,
		EventUserStatusChanged, EventUserExpired,
		EventUserTrafficLimitReached, EventUserTrafficReset,
	}
}

func knownEvent(event string) bool {
	switch event {
	case EventUserCreated, EventUserUpdated, EventUserDeleted,
		EventUserStatusChanged, EventUserExpired,
		EventUserTrafficLimitReached, EventUserTrafficReset:
		return true
	}
	return false
}

func (s *Service) apply(ctx context.Context, uow storage.UnitOfWork, ev Event) (string, *models.Notification, error) {
	const op = "reconciler.apply"

	user, err := uow.Users().GetByPanelUUID(ctx, ev.Data.UUID)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil {
		// панель может ссылаться на аккаунты без локального двойника
		return fmt.Sprintf("User not found: %s", ev.Data.UUID), nil, nil
	}

	if ev.Event == EventUserCreated {
		return "user already linked", nil, nil
	}
	if ev.Event == EventUserDeleted {
		return s.applyUserDeleted(ctx, uow, user)
	}

	sub, err := uow.Subscriptions().GetCurrentByUserID(ctx, user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub == nil {
		return fmt.Sprintf("no subscription for user %d", user.ID), nil, nil
	}
	if stale(sub, ev.Timestamp) {
		return fmt.Sprintf("stale event ignored: %s", ev.Timestamp.Format(time.RFC3339)), nil, nil
	}

	var (
		msg  string
		note *models.Notification
	)
	switch ev.Event {
	case EventUserUpdated:
		msg, err = s.applyUserUpdated(ctx, uow, sub, ev.Data)
	case EventUserStatusChanged:
		msg, note, err = s.applyStatusChanged(ctx, uow, user, sub, ev.Data)
	case EventUserExpired:
		msg, note, err = s.applyExpired(ctx, uow, user, sub)
	case EventUserTrafficLimitReached:
		msg, note, err = s.applyTrafficLimitReached(ctx, uow, user, sub, ev.Data)
	case EventUserTrafficReset:
		msg, note, err = s.applyTrafficReset(ctx, uow, user, sub)
	default:
		return "", nil, fmt.Errorf("%s: unreachable event %s", op, ev.Event)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if err := uow.Subscriptions().SetLastWebhookUpdate(ctx, sub.ID, ts); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return msg, note, nil
}

// stale отбрасывает событие, чья метка времени старше уже применённого.
// Защищает от перетирания свежего состояния опоздавшим событием.
func stale(sub *models.Subscription, ts time.Time) bool {
	return sub.LastWebhookUpdateAt != nil && !ts.IsZero() && ts.Before(*sub.LastWebhookUpdateAt)
}

func (s *Service) applyUserDeleted(ctx context.Context, uow storage.UnitOfWork, user *models.User) (string, *models.Notification, error) {
	if err := uow.Users().SetStatus(ctx, user.ID, models.UserStatusDeleted); err != nil {
		return "", nil, err
	}
	sub, err := uow.Subscriptions().GetCurrentByUserID(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}
	if sub != nil && sub.Status != models.SubscriptionStatusDisabled {
		if err := uow.Subscriptions().SetStatus(ctx, sub.ID, models.SubscriptionStatusDisabled); err != nil {
			return "", nil, err
		}
	}
	return fmt.Sprintf("user %d marked deleted", user.ID), nil, nil
}

func (s *Service) applyUserUpdated(ctx context.Context, uow storage.UnitOfWork, sub *models.Subscription, data EventData) (string, error) {
	if data.UsedTrafficBytes != nil {
		if err := uow.Subscriptions().UpdateTraffic(ctx, sub.ID, *data.UsedTrafficBytes); err != nil {
			return "", err
		}
	}
	if data.ExpireAt != nil {
		if err := uow.Subscriptions().SetEndDate(ctx, sub.ID, data.ExpireAt.UTC()); err != nil {
			return "", err
		}
	}
	if data.TrafficLimitBytes != nil || data.HWIDDeviceLimit != nil {
		limit := sub.TrafficLimitBytes
		if data.TrafficLimitBytes != nil {
			limit = *data.TrafficLimitBytes
		}
		devices := sub.DeviceLimit
		if data.HWIDDeviceLimit != nil {
			devices = *data.HWIDDeviceLimit
		}
		if err := uow.Subscriptions().UpdateLimits(ctx, sub.ID, limit, devices, sub.ConnectedSquads); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("subscription %d updated", sub.ID), nil
}

func (s *Service) applyStatusChanged(ctx context.Context, uow storage.UnitOfWork, user *models.User, sub *models.Subscription, data EventData) (string, *models.Notification, error) {
	status := mapPanelStatus(data.Status)
	if sub.Status == status {
		return fmt.Sprintf("subscription %d already %s", sub.ID, status), nil, nil
	}
	if err := uow.Subscriptions().SetStatus(ctx, sub.ID, status); err != nil {
		return "", nil, err
	}
	note := &models.Notification{
		TelegramID:  user.TelegramID,
		TemplateKey: models.NotifyStatusChanged,
		Args:        map[string]string{"status": string(status)},
	}
	return fmt.Sprintf("subscription %d status set to %s", sub.ID, status), note, nil
}

func (s *Service) applyExpired(ctx context.Context, uow storage.UnitOfWork, user *models.User, sub *models.Subscription) (string, *models.Notification, error) {
	if sub.Status == models.SubscriptionStatusExpired {
		return fmt.Sprintf("subscription %d already expired", sub.ID), nil, nil
	}
	if err := uow.Subscriptions().SetStatus(ctx, sub.ID, models.SubscriptionStatusExpired); err != nil {
		return "", nil, err
	}
	note := &models.Notification{
		TelegramID:  user.TelegramID,
		TemplateKey: models.NotifySubscriptionExpired,
	}
	return fmt.Sprintf("subscription %d expired", sub.ID), note, nil
}

func (s *Service) applyTrafficLimitReached(ctx context.Context, uow storage.UnitOfWork, user *models.User, sub *models.Subscription, data EventData) (string, *models.Notification, error) {
	used := sub.TrafficLimitBytes
	if data.UsedTrafficBytes != nil {
		used = *data.UsedTrafficBytes
	}
	if err := uow.Subscriptions().UpdateTraffic(ctx, sub.ID, used); err != nil {
		return "", nil, err
	}
	note := &models.Notification{
		TelegramID:  user.TelegramID,
		TemplateKey: models.NotifyTrafficLimitReached,
	}
	return fmt.Sprintf("subscription %d traffic limit reached", sub.ID), note, nil
}

func (s *Service) applyTrafficReset(ctx context.Context, uow storage.UnitOfWork, user *models.User, sub *models.Subscription) (string, *models.Notification, error) {
	if err := uow.Subscriptions().UpdateTraffic(ctx, sub.ID, 0); err != nil {
		return "", nil, err
	}
	note := &models.Notification{
		TelegramID:  user.TelegramID,
		TemplateKey: models.NotifyTrafficReset,
	}
	return fmt.Sprintf("subscription %d traffic reset", sub.ID), note, nil
}

func mapPanelStatus(status string) models.SubscriptionStatus {
	switch status {
	case "ACTIVE":
		return models.SubscriptionStatusActive
	case "EXPIRED":
		return models.SubscriptionStatusExpired
	default:
		return models.SubscriptionStatusDisabled
	}
}
