// Package pricing рассчитывает стоимость подписки из конфигурации
// тарифов и каталога групп серверов.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nbelyakov/vpn-billing/internal/config"
	"github.com/nbelyakov/vpn-billing/internal/models"
)

// Catalog читает каталог групп серверов вне транзакций.
type Catalog interface {
	ListActive(ctx context.Context) ([]*models.ServerGroup, error)
	GetByUUIDs(ctx context.Context, uuids []string) ([]*models.ServerGroup, error)
}

type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Params параметры подписки, для которой считается цена.
type Params struct {
	PeriodDays     int
	TrafficLimitGB int
	DeviceLimit    int
	SquadUUIDs     []string
}

type Service struct {
	cfg     config.Pricing
	catalog Catalog
	cache   Cache
	log     *slog.Logger
}

func New(cfg config.Pricing, catalog Catalog, cache Cache, log *slog.Logger) *Service {
	return &Service{cfg: cfg, catalog: catalog, cache: cache, log: log}
}

// Validate проверяет параметры подписки: срок, лимит устройств и
// выбранные группы серверов.
func (s *Service) Validate(ctx context.Context, params Params) error {
	const op = "pricing.Validate"
	if params.PeriodDays <= 0 || params.PeriodDays > 730 {
		return fmt.Errorf("%s: period %d: %w", op, params.PeriodDays, models.ErrInvalidGiftParams)
	}
	if params.DeviceLimit < 1 {
		return fmt.Errorf("%s: device limit %d: %w", op, params.DeviceLimit, models.ErrInvalidGiftParams)
	}
	if params.TrafficLimitGB < 0 {
		return fmt.Errorf("%s: traffic limit %d: %w", op, params.TrafficLimitGB, models.ErrInvalidGiftParams)
	}
	if len(params.SquadUUIDs) == 0 {
		return fmt.Errorf("%s: no server groups selected: %w", op, models.ErrInvalidGiftParams)
	}

	groups, err := s.groupsByUUIDs(ctx, params.SquadUUIDs)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(groups) != len(params.SquadUUIDs) {
		return fmt.Errorf("%s: unknown server group in selection: %w", op, models.ErrInvalidGiftParams)
	}
	return nil
}

// Calculate возвращает стоимость подписки в копейках. Параметры
// должны быть предварительно проверены через Validate.
func (s *Service) Calculate(ctx context.Context, params Params) (int64, error) {
	const op = "pricing.Calculate"

	groups, err := s.groupsByUUIDs(ctx, params.SquadUUIDs)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	months := int64((params.PeriodDays + 29) / 30)
	price := s.cfg.BasePerMonthKopeks * months
	price += s.cfg.DevicePerMonthKopeks * int64(params.DeviceLimit-1) * months
	price += s.cfg.TrafficPerGBKopeks * int64(params.TrafficLimitGB)
	for _, g := range groups {
		price += g.PriceKopeks * months
	}
	return price, nil
}

// ListGroups возвращает активные группы серверов каталога.
func (s *Service) ListGroups(ctx context.Context) ([]*models.ServerGroup, error) {
	const op = "pricing.ListGroups"
	const cacheKey = "servergroups:active"

	var groups []*models.ServerGroup
	found, err := s.cache.Get(ctx, cacheKey, &groups)
	if err != nil {
		s.log.Warn("server group cache read failed", slog.Any("err", err))
	}
	if found {
		return groups, nil
	}

	groups, err = s.catalog.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Set(ctx, cacheKey, groups, 5*time.Minute); err != nil {
		s.log.Warn("server group cache write failed", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return groups, nil
}

func (s *Service) groupsByUUIDs(ctx context.Context, uuids []string) ([]*models.ServerGroup, error) {
	sorted := append([]string(nil), uuids...)
	sort.Strings(sorted)
	cacheKey := "servergroups:" + strings.Join(sorted, ",")

	var groups []*models.ServerGroup
	found, err := s.cache.Get(ctx, cacheKey, &groups)
	if err != nil {
		s.log.Warn("server group cache read failed", slog.Any("err", err))
	}
	if found {
		return groups, nil
	}

	groups, err = s.catalog.GetByUUIDs(ctx, uuids)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, groups, 5*time.Minute); err != nil {
		s.log.Warn("server group cache write failed", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return groups, nil
}
