package middlewarectx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbelyakov/vpn-billing/internal/lib/jwt"
)

type validatorStub struct {
	claims *jwt.CustomClaims
	err    error
}

func (v *validatorStub) ValidateToken(_ context.Context, _ string) (*jwt.CustomClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func runMiddleware(t *testing.T, validator TokenValidator, authHeader string) (*httptest.ResponseRecorder, bool, int64) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	var nextCalled bool
	var gotUserID int64
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		nextCalled = true
		gotUserID, _ = UserIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	JWTMiddleware(validator, log)(next).ServeHTTP(rec, req)
	return rec, nextCalled, gotUserID
}

func TestJWTMiddlewareValidToken(t *testing.T) {
	stub := &validatorStub{claims: &jwt.CustomClaims{UserID: 7, Email: "user@example.com"}}
	rec, nextCalled, userID := runMiddleware(t, stub, "Bearer some-token")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, nextCalled)
	assert.Equal(t, int64(7), userID)
}

func TestJWTMiddlewareMissingHeader(t *testing.T) {
	stub := &validatorStub{}
	rec, nextCalled, _ := runMiddleware(t, stub, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, nextCalled)
}

func TestJWTMiddlewareNotBearer(t *testing.T) {
	stub := &validatorStub{}
	rec, nextCalled, _ := runMiddleware(t, stub, "Basic dXNlcjpwYXNz")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, nextCalled)
}

func TestJWTMiddlewareInvalidToken(t *testing.T) {
	stub := &validatorStub{err: assert.AnError}
	rec, nextCalled, _ := runMiddleware(t, stub, "Bearer broken-token")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, nextCalled)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")
}

func TestUserIDFromContextMissing(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)
}
