package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nbelyakov/vpn-billing/internal/models"
)

// PromoCodes репозиторий промокодов и фактов их использования.
type PromoCodes struct {
	db Querier
}

// NewPromoCodes создаёт репозиторий промокодов поверх Querier.
func NewPromoCodes(db Querier) *PromoCodes {
	return &PromoCodes{db: db}
}

// GetByCode возвращает промокод по строке кода, nil если не найден.
func (r *PromoCodes) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const op = "repository.PromoCodes.GetByCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, type, balance_bonus_kopeks, subscription_days,
			      discount_percent, discount_hours, max_uses, current_uses,
			      first_purchase_only, valid_until, payload, created_by,
			      promo_group_id, created_at
			  FROM promocodes
			  WHERE code = $1`
	p := &models.PromoCode{}
	var validUntil sql.NullTime
	var payload sql.NullString
	var createdBy, promoGroupID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&p.ID, &p.Code, &p.Type, &p.BalanceBonusKopeks, &p.SubscriptionDays,
		&p.DiscountPercent, &p.DiscountHours, &p.MaxUses, &p.CurrentUses,
		&p.FirstPurchaseOnly, &validUntil, &payload, &createdBy,
		&promoGroupID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if validUntil.Valid {
		p.ValidUntil = &validUntil.Time
	}
	if payload.Valid {
		p.Payload = &payload.String
	}
	if createdBy.Valid {
		p.CreatedBy = &createdBy.Int64
	}
	if promoGroupID.Valid {
		p.PromoGroupID = &promoGroupID.Int64
	}
	return p, nil
}

// Create сохраняет новый промокод и возвращает его ID.
func (r *PromoCodes) Create(ctx context.Context, code *models.PromoCode) (int64, error) {
	const op = "repository.PromoCodes.Create"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO promocodes (code, type, balance_bonus_kopeks, subscription_days,
			      discount_percent, discount_hours, max_uses, first_purchase_only,
			      valid_until, payload, created_by, promo_group_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  RETURNING id`
	var newID int64
	if err := r.db.QueryRowContext(ctx, query,
		code.Code, code.Type, code.BalanceBonusKopeks, code.SubscriptionDays,
		code.DiscountPercent, code.DiscountHours, code.MaxUses, code.FirstPurchaseOnly,
		code.ValidUntil, code.Payload, code.CreatedBy, code.PromoGroupID).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// HasUse проверяет, активировал ли пользователь этот промокод ранее.
func (r *PromoCodes) HasUse(ctx context.Context, codeID, userID int64) (bool, error) {
	const op = "repository.PromoCodes.HasUse"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
			      SELECT 1 FROM promocode_uses WHERE promocode_id = $1 AND user_id = $2
			  )`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, codeID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// RegisterUse записывает факт активации кода пользователем. Уникальный
// индекс (promocode_id, user_id) превращает конкурентную повторную
// активацию в models.ErrPromoCodeAlreadyUsed на второй попытке.
func (r *PromoCodes) RegisterUse(ctx context.Context, codeID, userID int64) error {
	const op = "repository.PromoCodes.RegisterUse"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO promocode_uses (promocode_id, user_id) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, codeID, userID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, models.ErrPromoCodeAlreadyUsed)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IncrementUses увеличивает счётчик использований. Условие
// current_uses < max_uses перепроверяется на записи, а не только на
// чтении: из двух конкурентных активаций последнего использования
// вторая не находит строку и получает models.ErrPromoCodeAlreadyUsed.
func (r *PromoCodes) IncrementUses(ctx context.Context, codeID int64) error {
	const op = "repository.PromoCodes.IncrementUses"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE promocodes SET current_uses = current_uses + 1
			  WHERE id = $1 AND current_uses < max_uses`
	res, err := r.db.ExecContext(ctx, query, codeID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrPromoCodeAlreadyUsed)
	}
	return nil
}
