package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nbelyakov/vpn-billing/internal/models"
)

// Subscriptions репозиторий подписок.
type Subscriptions struct {
	db Querier
}

// NewSubscriptions создаёт репозиторий подписок поверх Querier.
func NewSubscriptions(db Querier) *Subscriptions {
	return &Subscriptions{db: db}
}

const subscriptionColumns = `id, user_id, status, is_trial, start_date, end_date,
			      traffic_limit_bytes, traffic_used_bytes, device_limit, connected_squads,
			      tariff_id, autopay_enabled, autopay_days_before, last_webhook_update_at,
			      created_at, updated_at`

func scanSubscription(row interface{ Scan(dest ...any) error }) (*models.Subscription, error) {
	s := &models.Subscription{}
	var squadsRaw []byte
	var tariffID sql.NullInt64
	var lastWebhookUpdateAt sql.NullTime

	if err := row.Scan(&s.ID, &s.UserID, &s.Status, &s.IsTrial, &s.StartDate, &s.EndDate,
		&s.TrafficLimitBytes, &s.TrafficUsedBytes, &s.DeviceLimit, &squadsRaw,
		&tariffID, &s.AutopayEnabled, &s.AutopayDaysBefore, &lastWebhookUpdateAt,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}

	if len(squadsRaw) > 0 {
		if err := json.Unmarshal(squadsRaw, &s.ConnectedSquads); err != nil {
			return nil, fmt.Errorf("decode connected_squads: %w", err)
		}
	}
	if tariffID.Valid {
		s.TariffID = &tariffID.Int64
	}
	if lastWebhookUpdateAt.Valid {
		s.LastWebhookUpdateAt = &lastWebhookUpdateAt.Time
	}
	return s, nil
}

// GetCurrentByUserID возвращает актуальную подписку пользователя —
// последнюю по дате создания. Исторические записи не учитываются.
// Возвращает nil, если подписок нет.
func (r *Subscriptions) GetCurrentByUserID(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "repository.Subscriptions.GetCurrentByUserID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1
			  ORDER BY created_at DESC
			  LIMIT 1`
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// Create сохраняет новую подписку и возвращает её ID.
func (r *Subscriptions) Create(ctx context.Context, sub *models.Subscription) (int64, error) {
	const op = "repository.Subscriptions.Create"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	squads, err := json.Marshal(sub.ConnectedSquads)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO subscriptions (user_id, status, is_trial, start_date, end_date,
			      traffic_limit_bytes, traffic_used_bytes, device_limit, connected_squads,
			      tariff_id, autopay_enabled, autopay_days_before)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  RETURNING id`
	var newID int64
	if err := r.db.QueryRowContext(ctx, query,
		sub.UserID, sub.Status, sub.IsTrial, sub.StartDate, sub.EndDate,
		sub.TrafficLimitBytes, sub.TrafficUsedBytes, sub.DeviceLimit, squads,
		sub.TariffID, sub.AutopayEnabled, sub.AutopayDaysBefore).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// Extend продлевает подписку на days дней. Новая дата окончания
// считается от max(now, end_date), поэтому досрочное продление не
// съедает оплаченные дни. Продление всегда активирует подписку и
// снимает флаг триала. Возвращает новую дату окончания.
func (r *Subscriptions) Extend(ctx context.Context, subID int64, days int) (time.Time, error) {
	const op = "repository.Subscriptions.Extend"
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET end_date = GREATEST(now(), end_date) + make_interval(days => $1),
			      status = $2, is_trial = FALSE, updated_at = now()
			  WHERE id = $3
			  RETURNING end_date`
	var endDate time.Time
	if err := r.db.QueryRowContext(ctx, query,
		days, models.SubscriptionStatusActive, subID).Scan(&endDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, fmt.Errorf("%s: %w", op, models.ErrSubscriptionNotFound)
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return endDate, nil
}

// SetStatus устанавливает статус подписки.
func (r *Subscriptions) SetStatus(ctx context.Context, subID int64, status models.SubscriptionStatus) error {
	const op = "repository.Subscriptions.SetStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions SET status = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, status, subID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateTraffic записывает снимок использованного трафика.
func (r *Subscriptions) UpdateTraffic(ctx context.Context, subID int64, usedBytes int64) error {
	const op = "repository.Subscriptions.UpdateTraffic"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions SET traffic_used_bytes = $1, updated_at = now()
			  WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, usedBytes, subID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateLimits обновляет лимиты трафика и устройств и набор групп серверов.
func (r *Subscriptions) UpdateLimits(ctx context.Context, subID int64, trafficLimitBytes int64, deviceLimit int, squads []string) error {
	const op = "repository.Subscriptions.UpdateLimits"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	squadsRaw, err := json.Marshal(squads)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `UPDATE subscriptions
			  SET traffic_limit_bytes = $1, device_limit = $2, connected_squads = $3,
			      updated_at = now()
			  WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, trafficLimitBytes, deviceLimit, squadsRaw, subID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetEndDate устанавливает дату окончания подписки.
func (r *Subscriptions) SetEndDate(ctx context.Context, subID int64, endDate time.Time) error {
	const op = "repository.Subscriptions.SetEndDate"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions SET end_date = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, endDate, subID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetLastWebhookUpdate фиксирует отметку времени последнего применённого
// события панели — сторожевое поле против устаревших событий.
func (r *Subscriptions) SetLastWebhookUpdate(ctx context.Context, subID int64, ts time.Time) error {
	const op = "repository.Subscriptions.SetLastWebhookUpdate"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions SET last_webhook_update_at = $1, updated_at = now()
			  WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, ts, subID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
