package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	issuer = "ec-checkout"

	useAccess  = "access"
	useRefresh = "refresh"
)

// Claims are carried by access tokens. Use separates access from refresh
// tokens signed with the same key.
type Claims struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Use        string `json:"use"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies the storefront's HS256 tokens.
type JWTService struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewJWTService(secretKey string, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		secretKey:  []byte(secretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// GenerateAccessToken returns a short-lived token for API calls and its
// expiry.
func (s *JWTService) GenerateAccessToken(customerID, email, role string) (string, time.Time, error) {
	return s.sign(Claims{CustomerID: customerID, Email: email, Role: role, Use: useAccess}, s.accessTTL)
}

// GenerateRefreshToken returns a long-lived token that can only be traded
// for a new session. Every token gets its own id, so two tokens issued in
// the same second still differ.
func (s *JWTService) GenerateRefreshToken(customerID string) (string, time.Time, error) {
	return s.sign(Claims{CustomerID: customerID, Use: useRefresh}, s.refreshTTL)
}

func (s *JWTService) sign(claims Claims, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   claims.CustomerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, useAccess)
}

// ValidateRefreshToken returns the customer the refresh token was issued to.
func (s *JWTService) ValidateRefreshToken(tokenString string) (string, error) {
	claims, err := s.parse(tokenString, useRefresh)
	if err != nil {
		return "", err
	}
	return claims.CustomerID, nil
}

func (s *JWTService) parse(tokenString, use string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Use != use || claims.CustomerID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
