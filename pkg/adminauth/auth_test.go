package adminauth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"marginrisk/pkg/adminauth"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	auth := adminauth.NewAuthenticator(adminauth.Config{Enabled: true, HMACSecret: "secret"}, nil)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/scheduler/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	auth := adminauth.NewAuthenticator(adminauth.Config{Enabled: true, HMACSecret: "secret"}, nil)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, "secret", jwt.MapClaims{"exp": float64(time.Now().Add(time.Hour).Unix())})
	req := httptest.NewRequest(http.MethodGet, "/v1/scheduler/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	auth := adminauth.NewAuthenticator(adminauth.Config{Enabled: true, HMACSecret: "secret"}, nil)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, "secret", jwt.MapClaims{"exp": float64(time.Now().Add(-time.Hour).Unix())})
	req := httptest.NewRequest(http.MethodGet, "/v1/scheduler/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareEnforcesRequiredScopes(t *testing.T) {
	auth := adminauth.NewAuthenticator(adminauth.Config{Enabled: true, HMACSecret: "secret"}, nil)
	handler := auth.Middleware("admin:write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, "secret", jwt.MapClaims{
		"exp":   float64(time.Now().Add(time.Hour).Unix()),
		"scope": "admin:read",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/scheduler/pause", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareDisabledAllowsAnyRequest(t *testing.T) {
	auth := adminauth.NewAuthenticator(adminauth.Config{Enabled: false}, nil)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/scheduler/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
