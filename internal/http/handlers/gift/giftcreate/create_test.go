package giftcreate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbelyakov/vpn-billing/internal/http/middlewarectx"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/services/pricing"
	"github.com/nbelyakov/vpn-billing/internal/services/promocode"
)

type serviceStub struct {
	gift   *promocode.Gift
	err    error
	calls  int
	params pricing.Params
}

func (s *serviceStub) CreateGift(_ context.Context, _ int64, params pricing.Params) (*promocode.Gift, error) {
	s.calls++
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return s.gift, nil
}

const validBody = `{"period_days":30,"traffic_limit_gb":100,"device_limit":3,"squad_uuids":["3c2a6f10-94d4-4c7e-9a10-0d6b1f9f41aa"]}`

func doRequest(t *testing.T, stub *serviceStub, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(log, stub)

	req := httptest.NewRequest(http.MethodPost, "/gifts", strings.NewReader(body))
	if authorized {
		req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserID, int64(7)))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateGiftSuccess(t *testing.T) {
	stub := &serviceStub{gift: &promocode.Gift{Code: "GIFT_ABCD1234EFGH", PriceKopeks: 20000}}
	rec := doRequest(t, stub, validBody, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, 30, stub.params.PeriodDays)
	assert.Equal(t, 3, stub.params.DeviceLimit)
	assert.Contains(t, rec.Body.String(), "GIFT_ABCD1234EFGH")
	assert.Contains(t, rec.Body.String(), `"price_kopeks":20000`)
}

func TestCreateGiftUnauthorized(t *testing.T) {
	stub := &serviceStub{}
	rec := doRequest(t, stub, validBody, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, stub.calls)
}

func TestCreateGiftValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing period", body: `{"device_limit":1,"squad_uuids":["3c2a6f10-94d4-4c7e-9a10-0d6b1f9f41aa"]}`},
		{name: "too many devices", body: `{"period_days":30,"device_limit":11,"squad_uuids":["3c2a6f10-94d4-4c7e-9a10-0d6b1f9f41aa"]}`},
		{name: "empty squads", body: `{"period_days":30,"device_limit":1,"squad_uuids":[]}`},
		{name: "squad is not uuid", body: `{"period_days":30,"device_limit":1,"squad_uuids":["not-a-uuid"]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &serviceStub{}
			rec := doRequest(t, stub, tc.body, true)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, 0, stub.calls)
		})
	}
}

func TestCreateGiftErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "insufficient balance", err: models.ErrInsufficientBalance, code: http.StatusPaymentRequired},
		{name: "invalid params", err: models.ErrInvalidGiftParams, code: http.StatusUnprocessableEntity},
		{name: "generation exhausted", err: models.ErrCodeGenerationExhausted, code: http.StatusInternalServerError},
		{name: "storage failure", err: assert.AnError, code: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &serviceStub{err: tc.err}
			rec := doRequest(t, stub, validBody, true)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}
