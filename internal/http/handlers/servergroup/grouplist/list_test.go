package grouplist

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbelyakov/vpn-billing/internal/models"
)

type catalogStub struct {
	groups []*models.ServerGroup
	err    error
}

func (c *catalogStub) ListGroups(_ context.Context) ([]*models.ServerGroup, error) {
	return c.groups, c.err
}

func newTestHandler(catalog *catalogStub) *Handler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), catalog)
}

func TestListGroupsSuccess(t *testing.T) {
	catalog := &catalogStub{groups: []*models.ServerGroup{
		{UUID: "a1", Name: "Нидерланды", CountryCode: "NL", PriceKopeks: 5000, IsTrialEligible: true},
		{UUID: "b2", Name: "Германия", CountryCode: "DE", PriceKopeks: 3000},
	}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/servers", nil)
	newTestHandler(catalog).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			Groups []Group `json:"groups"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Groups, 2)
	assert.Equal(t, "a1", body.Data.Groups[0].UUID)
	assert.Equal(t, int64(5000), body.Data.Groups[0].PriceKopeks)
	assert.True(t, body.Data.Groups[0].IsTrialEligible)
	assert.Equal(t, "DE", body.Data.Groups[1].CountryCode)
}

func TestListGroupsEmptyCatalog(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/servers", nil)
	newTestHandler(&catalogStub{}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"groups":[]`)
}

func TestListGroupsCatalogFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/servers", nil)
	newTestHandler(&catalogStub{err: assert.AnError}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not list server groups")
}
