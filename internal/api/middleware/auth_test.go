package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(testSecret, 15*time.Minute, 7*24*time.Hour)
}

// captureClaims records the claims the wrapped handler saw.
func captureClaims(dst **auth.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			*dst = claims
		}
		w.WriteHeader(http.StatusOK)
	})
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// ============================================
// Authenticate Tests
// ============================================

func TestAuthenticate_BearerHeader(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, err := jwtService.GenerateAccessToken("cust-123", "ayse@example.com", "customer")
	require.NoError(t, err)

	var claims *auth.Claims
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	Authenticate(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "cust-123", claims.CustomerID)
	assert.Equal(t, "ayse@example.com", claims.Email)
	assert.Equal(t, "customer", claims.Role)
}

func TestAuthenticate_Cookie(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, err := jwtService.GenerateAccessToken("cust-456", "admin@example.com", "admin")
	require.NoError(t, err)

	var claims *auth.Claims
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	rec := httptest.NewRecorder()

	Authenticate(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "cust-456", claims.CustomerID)
}

func TestAuthenticate_CookieTakesPrecedence(t *testing.T) {
	jwtService := newTestJWTService()
	cookieToken, _, _ := jwtService.GenerateAccessToken("cookie-cust", "c@example.com", "customer")
	headerToken, _, _ := jwtService.GenerateAccessToken("header-cust", "h@example.com", "admin")

	var claims *auth.Claims
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: cookieToken})
	req.Header.Set("Authorization", "Bearer "+headerToken)
	rec := httptest.NewRecorder()

	Authenticate(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

	require.NotNil(t, claims)
	assert.Equal(t, "cookie-cust", claims.CustomerID)
}

func TestAuthenticate_Rejections(t *testing.T) {
	jwtService := newTestJWTService()
	other := auth.NewJWTService("another-secret-key-with-32-characters", 15*time.Minute, time.Hour)
	foreign, _, _ := other.GenerateAccessToken("cust-1", "a@example.com", "customer")
	refresh, _, _ := jwtService.GenerateRefreshToken("cust-1")

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"garbage token", "Bearer invalid-token"},
		{"wrong signature", "Bearer " + foreign},
		{"refresh token", "Bearer " + refresh},
		{"not a bearer scheme", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			Authenticate(jwtService)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"success":false,"message":"`+messageFor(tt.header)+`","code":"unauthorized"}`, rec.Body.String())
		})
	}
}

func messageFor(header string) string {
	if header == "" || header[:6] != "Bearer" {
		return "authentication required"
	}
	return "invalid or expired token"
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	jwtService := auth.NewJWTService(testSecret, time.Millisecond, time.Hour)
	token, _, err := jwtService.GenerateAccessToken("cust-1", "a@example.com", "customer")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	Authenticate(jwtService)(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================
// Optional Auth Tests
// ============================================

func TestOptionalAuth_ValidToken(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, _ := jwtService.GenerateAccessToken("cust-123", "a@example.com", "customer")

	var claims *auth.Claims
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	OptionalAuth(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "cust-123", claims.CustomerID)
}

func TestOptionalAuth_AnonymousPassesThrough(t *testing.T) {
	jwtService := newTestJWTService()

	for _, header := range []string{"", "Bearer invalid-token"} {
		var claims *auth.Claims
		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()

		OptionalAuth(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, claims)
	}
}

// ============================================
// Require Role Tests
// ============================================

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"admin allowed", &auth.Claims{CustomerID: "u1", Role: "admin"}, http.StatusOK},
		{"customer forbidden", &auth.Claims{CustomerID: "u2", Role: "customer"}, http.StatusForbidden},
		{"anonymous unauthorized", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()

			RequireRole("admin")(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

// ============================================
// Context Helper Tests
// ============================================

func TestContextHelpers(t *testing.T) {
	ctx := WithClaims(context.Background(), &auth.Claims{CustomerID: "cust-1", Role: "admin"})

	assert.Equal(t, "cust-1", CustomerID(ctx))
	assert.True(t, IsAdmin(ctx))

	assert.Empty(t, CustomerID(context.Background()))
	assert.False(t, IsAdmin(context.Background()))
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)
}
