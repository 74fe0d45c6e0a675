package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nbelyakov/vpn-billing/internal/models"
)

// ServerGroups репозиторий каталога групп серверов (сквадов).
type ServerGroups struct {
	db Querier
}

// NewServerGroups создаёт репозиторий каталога поверх Querier.
func NewServerGroups(db Querier) *ServerGroups {
	return &ServerGroups{db: db}
}

const serverGroupColumns = `id, uuid, name, country_code, is_trial_eligible,
			      price_kopeks, is_active`

func scanServerGroup(row interface{ Scan(dest ...any) error }) (*models.ServerGroup, error) {
	g := &models.ServerGroup{}
	if err := row.Scan(&g.ID, &g.UUID, &g.Name, &g.CountryCode,
		&g.IsTrialEligible, &g.PriceKopeks, &g.IsActive); err != nil {
		return nil, err
	}
	return g, nil
}

// ListActive возвращает активные группы серверов.
func (r *ServerGroups) ListActive(ctx context.Context) ([]*models.ServerGroup, error) {
	const op = "repository.ServerGroups.ListActive"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + serverGroupColumns + ` FROM server_groups
			  WHERE is_active ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ServerGroup
	for rows.Next() {
		g, err := scanServerGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetRandomTrialEligible возвращает случайную группу, доступную для
// триальных подписок, nil если таких нет.
func (r *ServerGroups) GetRandomTrialEligible(ctx context.Context) (*models.ServerGroup, error) {
	const op = "repository.ServerGroups.GetRandomTrialEligible"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + serverGroupColumns + ` FROM server_groups
			  WHERE is_active AND is_trial_eligible
			  ORDER BY random() LIMIT 1`
	g, err := scanServerGroup(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return g, nil
}

// GetByUUIDs возвращает группы по списку UUID.
func (r *ServerGroups) GetByUUIDs(ctx context.Context, uuids []string) ([]*models.ServerGroup, error) {
	const op = "repository.ServerGroups.GetByUUIDs"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + serverGroupColumns + ` FROM server_groups
			  WHERE uuid = ANY(string_to_array($1, ','))`
	rows, err := r.db.QueryContext(ctx, query, strings.Join(uuids, ","))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ServerGroup
	for rows.Next() {
		g, err := scanServerGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
