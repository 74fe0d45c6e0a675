package pricing

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbelyakov/vpn-billing/internal/config"
	"github.com/nbelyakov/vpn-billing/internal/models"
)

type catalogStub struct {
	groups []*models.ServerGroup
	calls  int
}

func (c *catalogStub) ListActive(_ context.Context) ([]*models.ServerGroup, error) {
	c.calls++
	return c.groups, nil
}

func (c *catalogStub) GetByUUIDs(_ context.Context, uuids []string) ([]*models.ServerGroup, error) {
	c.calls++
	var out []*models.ServerGroup
	for _, g := range c.groups {
		for _, u := range uuids {
			if g.UUID == u {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

// cacheStub хранит значения в памяти через json, как это делает redis-кеш.
type cacheStub struct {
	data map[string][]byte
}

func newCacheStub() *cacheStub { return &cacheStub{data: make(map[string][]byte)} }

func (c *cacheStub) Get(_ context.Context, key string, result any) (bool, error) {
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, result)
}

func (c *cacheStub) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func testConfig() config.Pricing {
	return config.Pricing{
		BasePerMonthKopeks:   10000,
		DevicePerMonthKopeks: 2000,
		TrafficPerGBKopeks:   50,
	}
}

func newTestService(groups ...*models.ServerGroup) (*Service, *catalogStub, *cacheStub) {
	catalog := &catalogStub{groups: groups}
	cache := newCacheStub()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(testConfig(), catalog, cache, log), catalog, cache
}

func squad(uuid string, price int64) *models.ServerGroup {
	return &models.ServerGroup{UUID: uuid, Name: uuid, PriceKopeks: price, IsActive: true}
}

func TestValidateRejectsBadParams(t *testing.T) {
	svc, _, _ := newTestService(squad("sq-a", 0))
	ctx := context.Background()

	cases := []struct {
		name   string
		params Params
	}{
		{name: "zero period", params: Params{PeriodDays: 0, DeviceLimit: 1, SquadUUIDs: []string{"sq-a"}}},
		{name: "period over two years", params: Params{PeriodDays: 731, DeviceLimit: 1, SquadUUIDs: []string{"sq-a"}}},
		{name: "zero devices", params: Params{PeriodDays: 30, DeviceLimit: 0, SquadUUIDs: []string{"sq-a"}}},
		{name: "negative traffic", params: Params{PeriodDays: 30, DeviceLimit: 1, TrafficLimitGB: -1, SquadUUIDs: []string{"sq-a"}}},
		{name: "no squads", params: Params{PeriodDays: 30, DeviceLimit: 1}},
		{name: "unknown squad", params: Params{PeriodDays: 30, DeviceLimit: 1, SquadUUIDs: []string{"sq-x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Validate(ctx, tc.params)
			require.ErrorIs(t, err, models.ErrInvalidGiftParams)
		})
	}

	require.NoError(t, svc.Validate(ctx, Params{PeriodDays: 30, DeviceLimit: 1, SquadUUIDs: []string{"sq-a"}}))
}

func TestCalculate(t *testing.T) {
	svc, _, _ := newTestService(squad("sq-a", 3000), squad("sq-b", 1000))
	ctx := context.Background()

	cases := []struct {
		name   string
		params Params
		want   int64
	}{
		{
			name:   "one month single device",
			params: Params{PeriodDays: 30, DeviceLimit: 1, SquadUUIDs: []string{"sq-a"}},
			// 10000 + 3000
			want: 13000,
		},
		{
			name:   "31 days rounds up to two months",
			params: Params{PeriodDays: 31, DeviceLimit: 1, SquadUUIDs: []string{"sq-a"}},
			want:   26000,
		},
		{
			name:   "extra devices and traffic",
			params: Params{PeriodDays: 30, DeviceLimit: 3, TrafficLimitGB: 100, SquadUUIDs: []string{"sq-a"}},
			// 10000 + 2000*2 + 50*100 + 3000
			want: 22000,
		},
		{
			name:   "two squads",
			params: Params{PeriodDays: 30, DeviceLimit: 1, SquadUUIDs: []string{"sq-a", "sq-b"}},
			want:   14000,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price, err := svc.Calculate(ctx, tc.params)
			require.NoError(t, err)
			assert.Equal(t, tc.want, price)
		})
	}
}

func TestCalculateUsesCache(t *testing.T) {
	svc, catalog, _ := newTestService(squad("sq-a", 3000))
	ctx := context.Background()
	params := Params{PeriodDays: 30, DeviceLimit: 1, SquadUUIDs: []string{"sq-a"}}

	first, err := svc.Calculate(ctx, params)
	require.NoError(t, err)
	second, err := svc.Calculate(ctx, params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, catalog.calls)
}

func TestListGroupsUsesCache(t *testing.T) {
	svc, catalog, _ := newTestService(squad("sq-a", 3000), squad("sq-b", 1000))
	ctx := context.Background()

	first, err := svc.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := svc.ListGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, catalog.calls)
}
