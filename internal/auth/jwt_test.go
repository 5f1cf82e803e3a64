package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

func newTestService() *JWTService {
	return NewJWTService(testSecret, 15*time.Minute, 7*24*time.Hour)
}

// clockAt returns a service whose clock can be moved by the test.
func clockAt(start time.Time) (*JWTService, *time.Time) {
	now := start
	s := newTestService()
	s.now = func() time.Time { return now }
	return s, &now
}

// ============================================
// Access Token Tests
// ============================================

func TestAccessToken_RoundTrip(t *testing.T) {
	s := newTestService()

	token, expiresAt, err := s.GenerateAccessToken("cust-1", "ayse@example.com", "admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 2*time.Second)

	claims, err := s.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", claims.CustomerID)
	assert.Equal(t, "cust-1", claims.Subject)
	assert.Equal(t, "ayse@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestAccessToken_Expired(t *testing.T) {
	s, now := clockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	token, _, err := s.GenerateAccessToken("cust-1", "ayse@example.com", "customer")
	require.NoError(t, err)

	*now = now.Add(16 * time.Minute)
	claims, err := s.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestAccessToken_Rejected(t *testing.T) {
	s := newTestService()
	foreign, _, err := NewJWTService("another-secret-key-with-32-characters", time.Minute, time.Hour).
		GenerateAccessToken("cust-1", "a@example.com", "customer")
	require.NoError(t, err)
	refresh, _, err := s.GenerateRefreshToken("cust-1")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		CustomerID: "cust-1",
		Use:        useAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	otherIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		CustomerID: "cust-1",
		Use:        useAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"alg none", unsigned},
		{"other issuer", otherIssuer},
		{"refresh token", refresh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := s.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

// ============================================
// Refresh Token Tests
// ============================================

func TestRefreshToken_RoundTrip(t *testing.T) {
	s := newTestService()

	token, expiresAt, err := s.GenerateRefreshToken("cust-9")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, 2*time.Second)

	customerID, err := s.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "cust-9", customerID)
}

func TestRefreshToken_UniqueWithinTheSameSecond(t *testing.T) {
	s, _ := clockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	first, _, err := s.GenerateRefreshToken("cust-9")
	require.NoError(t, err)
	second, _, err := s.GenerateRefreshToken("cust-9")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestRefreshToken_AccessTokenRejected(t *testing.T) {
	s := newTestService()
	access, _, err := s.GenerateAccessToken("cust-9", "a@example.com", "customer")
	require.NoError(t, err)

	customerID, err := s.ValidateRefreshToken(access)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Empty(t, customerID)
}

func TestRefreshToken_Expired(t *testing.T) {
	s, now := clockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	token, _, err := s.GenerateRefreshToken("cust-9")
	require.NoError(t, err)

	*now = now.Add(8 * 24 * time.Hour)
	_, err = s.ValidateRefreshToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
}
