package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nbelyakov/vpn-billing/internal/models"
)

// Users репозиторий пользователей.
type Users struct {
	db Querier
}

// NewUsers создаёт репозиторий пользователей поверх Querier.
func NewUsers(db Querier) *Users {
	return &Users{db: db}
}

const userColumns = `id, telegram_id, username, email, password_hash, status,
			      balance_kopeks, has_had_paid_subscription, discount_percent,
			      discount_expires_at, discount_source, referral_code, panel_uuid,
			      promo_group_id, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	u := &models.User{}
	var email, passwordHash, discountSource, panelUUID sql.NullString
	var discountExpiresAt sql.NullTime
	var promoGroupID sql.NullInt64

	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &email, &passwordHash,
		&u.Status, &u.BalanceKopeks, &u.HasHadPaidSubscription, &u.DiscountPercent,
		&discountExpiresAt, &discountSource, &u.ReferralCode, &panelUUID,
		&promoGroupID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}

	if email.Valid {
		u.Email = &email.String
	}
	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	if discountExpiresAt.Valid {
		u.DiscountExpiresAt = &discountExpiresAt.Time
	}
	if discountSource.Valid {
		u.DiscountSource = discountSource.String
	}
	if panelUUID.Valid {
		u.PanelUUID = &panelUUID.String
	}
	if promoGroupID.Valid {
		u.PromoGroupID = &promoGroupID.Int64
	}
	return u, nil
}

func (r *Users) getBy(ctx context.Context, op, where string, arg any) (*models.User, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetByID возвращает пользователя по внутреннему ID, nil если не найден.
func (r *Users) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getBy(ctx, "repository.Users.GetByID", "id = $1", id)
}

// GetByTelegramID возвращает пользователя по Telegram ID, nil если не найден.
func (r *Users) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return r.getBy(ctx, "repository.Users.GetByTelegramID", "telegram_id = $1", telegramID)
}

// GetByPanelUUID возвращает пользователя по UUID панели, nil если не найден.
func (r *Users) GetByPanelUUID(ctx context.Context, panelUUID string) (*models.User, error) {
	return r.getBy(ctx, "repository.Users.GetByPanelUUID", "panel_uuid = $1", panelUUID)
}

// GetByEmail возвращает пользователя по email, nil если не найден.
func (r *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "repository.Users.GetByEmail", "email = $1", email)
}

// Create сохраняет нового пользователя и возвращает его ID.
func (r *Users) Create(ctx context.Context, user *models.User) (int64, error) {
	const op = "repository.Users.Create"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (telegram_id, username, email, password_hash, status,
			      balance_kopeks, has_had_paid_subscription, referral_code, panel_uuid,
			      promo_group_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING id`
	var newID int64
	if err := r.db.QueryRowContext(ctx, query,
		user.TelegramID, user.Username, user.Email, user.PasswordHash, user.Status,
		user.BalanceKopeks, user.HasHadPaidSubscription, user.ReferralCode,
		user.PanelUUID, user.PromoGroupID).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// AddBalance пополняет баланс пользователя. Верхней границы нет.
func (r *Users) AddBalance(ctx context.Context, userID, amountKopeks int64) error {
	const op = "repository.Users.AddBalance"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET balance_kopeks = balance_kopeks + $1, updated_at = now()
			  WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, amountKopeks, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	return nil
}

// SubtractBalance списывает с баланса. Проверка средств и списание
// выполняются одним UPDATE, гонки чтение-потом-запись нет: при
// недостатке средств строка не обновляется и возвращается
// models.ErrInsufficientBalance.
func (r *Users) SubtractBalance(ctx context.Context, userID, amountKopeks int64) error {
	const op = "repository.Users.SubtractBalance"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET balance_kopeks = balance_kopeks - $1, updated_at = now()
			  WHERE id = $2 AND balance_kopeks >= $1`
	res, err := r.db.ExecContext(ctx, query, amountKopeks, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrInsufficientBalance)
	}
	return nil
}

// SetStatus устанавливает статус пользователя.
func (r *Users) SetStatus(ctx context.Context, userID int64, status models.UserStatus) error {
	const op = "repository.Users.SetStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET status = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, status, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkHadPaidSubscription помечает пользователя как имевшего платную подписку.
func (r *Users) MarkHadPaidSubscription(ctx context.Context, userID int64) error {
	const op = "repository.Users.MarkHadPaidSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET has_had_paid_subscription = TRUE, updated_at = now()
			  WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetDiscount записывает скидку в профиль пользователя.
func (r *Users) SetDiscount(ctx context.Context, userID int64, percent int, expiresAt *time.Time, source string) error {
	const op = "repository.Users.SetDiscount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET discount_percent = $1, discount_expires_at = $2,
			      discount_source = $3, updated_at = now()
			  WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, percent, expiresAt, source, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetPanelUUID связывает пользователя с учётной записью панели.
func (r *Users) SetPanelUUID(ctx context.Context, userID int64, panelUUID string) error {
	const op = "repository.Users.SetPanelUUID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET panel_uuid = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, panelUUID, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetPromoGroup переводит пользователя в промо-группу.
func (r *Users) SetPromoGroup(ctx context.Context, userID, groupID int64) error {
	const op = "repository.Users.SetPromoGroup"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET promo_group_id = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// NextSyntheticTelegramID выделяет следующий отрицательный синтетический
// идентификатор для аккаунта без Telegram (регистрация по email).
func (r *Users) NextSyntheticTelegramID(ctx context.Context) (int64, error) {
	const op = "repository.Users.NextSyntheticTelegramID"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT LEAST(COALESCE(MIN(telegram_id), 0), 0) - 1 FROM users`
	var id int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}
