package promocode

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/services/pricing"
	"github.com/nbelyakov/vpn-billing/internal/storage/storagemock"
)

func giftParams() pricing.Params {
	return pricing.Params{
		PeriodDays:     30,
		TrafficLimitGB: 100,
		DeviceLimit:    3,
		SquadUUIDs:     []string{"3c2a6f10-94d4-4c7e-9a10-0d6b1f9f41aa"},
	}
}

func giftPayloadJSON(t *testing.T, p GiftPayload) *string {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	s := string(raw)
	return &s
}

func TestCreateGiftDebitsExactPrice(t *testing.T) {
	uow := &storagemock.UnitOfWork{}
	uow.UsersMock.On("GetByID", mock.Anything, int64(7)).Return(testUser(), nil)
	uow.UsersMock.On("SubtractBalance", mock.Anything, int64(7), int64(20000)).Return(nil)
	uow.PromoCodesMock.On("GetByCode", mock.Anything, mock.Anything).Return(nil, nil)
	uow.PromoCodesMock.On("Create", mock.Anything, mock.MatchedBy(func(c *models.PromoCode) bool {
		if c.Type != models.PromoCodeGift || c.MaxUses != 1 || c.Payload == nil {
			return false
		}
		var p GiftPayload
		if err := json.Unmarshal([]byte(*c.Payload), &p); err != nil {
			return false
		}
		return p.Version == 1 && p.Days == 30 && p.DeviceLimit == 3 && p.PurchasedBy == 7
	})).Return(int64(5), nil)
	uow.LedgerMock.On("Create", mock.Anything, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.AmountKopeks == -20000 && e.IsCompleted && strings.HasPrefix(e.Description, "gift_"+PrefixGift)
	})).Return(int64(6), nil)

	svc, _, notifier := newTestService(uow)
	gift, err := svc.CreateGift(context.Background(), 7, giftParams())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gift.Code, PrefixGift))
	assert.Equal(t, int64(20000), gift.PriceKopeks)
	assert.Equal(t, "https://t.me/testbot?start="+gift.Code, gift.DeepLink)
	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, models.NotifyGiftPurchased, notifier.msgs[0].TemplateKey)
	uow.AssertExpectations(t)
}

func TestCreateGiftInsufficientBalance(t *testing.T) {
	uow := &storagemock.UnitOfWork{}
	uow.UsersMock.On("GetByID", mock.Anything, int64(7)).Return(testUser(), nil)
	uow.UsersMock.On("SubtractBalance", mock.Anything, int64(7), int64(20000)).
		Return(models.ErrInsufficientBalance)

	svc, _, notifier := newTestService(uow)
	_, err := svc.CreateGift(context.Background(), 7, giftParams())
	require.ErrorIs(t, err, models.ErrInsufficientBalance)
	assert.Empty(t, notifier.msgs)
	uow.PromoCodesMock.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateGiftGenerationExhausted(t *testing.T) {
	taken := &models.PromoCode{ID: 1, Code: "GIFT_TAKEN", Type: models.PromoCodeGift, MaxUses: 1}

	uow := &storagemock.UnitOfWork{}
	uow.UsersMock.On("GetByID", mock.Anything, int64(7)).Return(testUser(), nil)
	uow.UsersMock.On("SubtractBalance", mock.Anything, int64(7), int64(20000)).Return(nil)
	uow.PromoCodesMock.On("GetByCode", mock.Anything, mock.Anything).Return(taken, nil)

	svc, _, _ := newTestService(uow)
	_, err := svc.CreateGift(context.Background(), 7, giftParams())
	require.ErrorIs(t, err, models.ErrCodeGenerationExhausted)
	uow.PromoCodesMock.AssertNumberOfCalls(t, "GetByCode", 10)
}

func TestRedeemGiftMergesIntoActiveSubscription(t *testing.T) {
	payload := giftPayloadJSON(t, GiftPayload{
		Version:           1,
		Days:              60,
		TrafficLimitBytes: 200 << 30,
		DeviceLimit:       5,
		SquadUUIDs:        []string{"sq-b", "sq-c"},
		PurchasedBy:       3,
	})
	code := &models.PromoCode{ID: 9, Code: "GIFT_ABCD", Type: models.PromoCodeGift, MaxUses: 1, Payload: payload}
	sub := &models.Subscription{
		ID:                11,
		UserID:            7,
		Status:            models.SubscriptionStatusActive,
		EndDate:           time.Now().UTC().AddDate(0, 0, 10),
		TrafficLimitBytes: 50 << 30,
		DeviceLimit:       2,
		ConnectedSquads:   []string{"sq-a", "sq-b"},
	}
	newEnd := sub.EndDate.AddDate(0, 0, 60)

	uow := &storagemock.UnitOfWork{}
	uow.PromoCodesMock.On("GetByCode", mock.Anything, "GIFT_ABCD").Return(code, nil)
	uow.UsersMock.On("GetByID", mock.Anything, int64(7)).Return(testUser(), nil)
	uow.PromoCodesMock.On("HasUse", mock.Anything, int64(9), int64(7)).Return(false, nil)
	uow.SubscriptionsMock.On("GetCurrentByUserID", mock.Anything, int64(7)).Return(sub, nil)
	// объединение условий: максимум лимитов, объединение групп
	uow.SubscriptionsMock.On("UpdateLimits", mock.Anything, int64(11),
		int64(200<<30), 5, []string{"sq-a", "sq-b", "sq-c"}).Return(nil)
	uow.SubscriptionsMock.On("Extend", mock.Anything, int64(11), 60).Return(newEnd, nil)
	uow.UsersMock.On("MarkHadPaidSubscription", mock.Anything, int64(7)).Return(nil)
	uow.PromoCodesMock.On("RegisterUse", mock.Anything, int64(9), int64(7)).Return(nil)
	uow.PromoCodesMock.On("IncrementUses", mock.Anything, int64(9)).Return(nil)
	uow.LedgerMock.On("Create", mock.Anything, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Description == "gift_activation_GIFT_ABCD" && e.AmountKopeks == 0
	})).Return(int64(7), nil)

	svc, syncer, notifier := newTestService(uow)
	result, err := svc.Redeem(context.Background(), "GIFT_ABCD", 7)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, models.PromoCodeGift, result.Type)
	require.Equal(t, 1, syncer.calls)
	assert.Equal(t, newEnd, syncer.sub.EndDate)
	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, models.NotifyGiftActivated, notifier.msgs[0].TemplateKey)
	uow.AssertExpectations(t)
}

func TestRedeemGiftCreatesSubscriptionWhenNoneActive(t *testing.T) {
	payload := giftPayloadJSON(t, GiftPayload{
		Version:           1,
		Days:              30,
		TrafficLimitBytes: 100 << 30,
		DeviceLimit:       3,
		SquadUUIDs:        []string{"sq-a"},
		PurchasedBy:       3,
	})
	code := &models.PromoCode{ID: 9, Code: "GIFT_NEW1", Type: models.PromoCodeGift, MaxUses: 1, Payload: payload}

	uow := &storagemock.UnitOfWork{}
	uow.PromoCodesMock.On("GetByCode", mock.Anything, "GIFT_NEW1").Return(code, nil)
	uow.UsersMock.On("GetByID", mock.Anything, int64(7)).Return(testUser(), nil)
	uow.PromoCodesMock.On("HasUse", mock.Anything, int64(9), int64(7)).Return(false, nil)
	uow.SubscriptionsMock.On("GetCurrentByUserID", mock.Anything, int64(7)).Return(nil, nil)
	uow.SubscriptionsMock.On("Create", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.UserID == 7 && s.DeviceLimit == 3 && s.TrafficLimitBytes == 100<<30 &&
			len(s.ConnectedSquads) == 1 && !s.IsTrial
	})).Return(int64(31), nil)
	uow.UsersMock.On("MarkHadPaidSubscription", mock.Anything, int64(7)).Return(nil)
	uow.PromoCodesMock.On("RegisterUse", mock.Anything, int64(9), int64(7)).Return(nil)
	uow.PromoCodesMock.On("IncrementUses", mock.Anything, int64(9)).Return(nil)
	uow.LedgerMock.On("Create", mock.Anything, mock.Anything).Return(int64(8), nil)

	svc, syncer, _ := newTestService(uow)
	result, err := svc.Redeem(context.Background(), "GIFT_NEW1", 7)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 1, syncer.calls)
	uow.AssertExpectations(t)
}

func TestDecodeGiftPayload(t *testing.T) {
	cases := []struct {
		name string
		raw  *string
	}{
		{name: "nil payload", raw: nil},
		{name: "empty payload", raw: ptr("")},
		{name: "broken json", raw: ptr("{not json")},
		{name: "missing version", raw: ptr(`{"days":30,"device_limit":1}`)},
		{name: "future version", raw: ptr(`{"version":2,"days":30,"device_limit":1}`)},
		{name: "non-positive days", raw: ptr(`{"version":1,"days":0,"device_limit":1}`)},
		{name: "zero devices", raw: ptr(`{"version":1,"days":30,"device_limit":0}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeGiftPayload(tc.raw)
			require.ErrorIs(t, err, models.ErrInvalidGiftPayload)
		})
	}

	p, err := decodeGiftPayload(ptr(`{"version":1,"days":30,"traffic_limit_bytes":0,"device_limit":1}`))
	require.NoError(t, err)
	assert.Equal(t, 30, p.Days)
}

func TestGenerateCodeShape(t *testing.T) {
	code, err := randomCode(PrefixGift)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, PrefixGift))
	assert.Len(t, code, len(PrefixGift)+codeLength)
	for _, r := range code[len(PrefixGift):] {
		assert.Contains(t, codeCharset, string(r))
	}
}

func ptr(s string) *string { return &s }
