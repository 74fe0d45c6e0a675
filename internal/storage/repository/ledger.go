package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nbelyakov/vpn-billing/internal/models"
)

// Ledger репозиторий финансового журнала. Журнал append-only:
// единственная допустимая мутация — отметка о завершении.
type Ledger struct {
	db Querier
}

// NewLedger создаёт репозиторий журнала поверх Querier.
func NewLedger(db Querier) *Ledger {
	return &Ledger{db: db}
}

// Create сохраняет запись журнала и возвращает её ID.
func (r *Ledger) Create(ctx context.Context, entry *models.LedgerEntry) (int64, error) {
	const op = "repository.Ledger.Create"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO ledger_entries (user_id, type, amount_kopeks, description,
			      payment_method, external_id, is_completed, completed_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7,
			      CASE WHEN $7 THEN now() ELSE NULL END)
			  RETURNING id`
	var newID int64
	if err := r.db.QueryRowContext(ctx, query,
		entry.UserID, entry.Type, entry.AmountKopeks, entry.Description,
		entry.PaymentMethod, entry.ExternalID, entry.IsCompleted).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetByExternalID возвращает запись по внешнему идентификатору провайдера,
// nil если записи нет.
func (r *Ledger) GetByExternalID(ctx context.Context, externalID string) (*models.LedgerEntry, error) {
	const op = "repository.Ledger.GetByExternalID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, type, amount_kopeks, description, payment_method,
			      external_id, is_completed, completed_at, created_at
			  FROM ledger_entries
			  WHERE external_id = $1`
	e := &models.LedgerEntry{}
	var paymentMethod, extID sql.NullString
	var completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(
		&e.ID, &e.UserID, &e.Type, &e.AmountKopeks, &e.Description, &paymentMethod,
		&extID, &e.IsCompleted, &completedAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if paymentMethod.Valid {
		e.PaymentMethod = &paymentMethod.String
	}
	if extID.Valid {
		e.ExternalID = &extID.String
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return e, nil
}

// MarkCompleted отмечает запись завершённой.
func (r *Ledger) MarkCompleted(ctx context.Context, id int64) error {
	const op = "repository.Ledger.MarkCompleted"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE ledger_entries SET is_completed = TRUE, completed_at = now()
			  WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
