package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/domain/customer"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/readmodel"
	"github.com/google/uuid"
)

const (
	refreshTokenCookie = "refresh_token"
	sessionCookie      = "session_id"
	refreshCookiePath  = "/api/auth/refresh"
)

// hashToken is how refresh tokens are stored.
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// AuthHandlers handles registration, login and token refresh.
type AuthHandlers struct {
	customers  *customer.Service
	queries    *query.Handler
	jwtService *auth.JWTService
	readStore  store.ReadStoreInterface
}

func NewAuthHandlers(customers *customer.Service, queries *query.Handler, jwtService *auth.JWTService, readStore store.ReadStoreInterface) *AuthHandlers {
	return &AuthHandlers{
		customers:  customers,
		queries:    queries,
		jwtService: jwtService,
		readStore:  readStore,
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CustomerResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toCustomerResponse(c *customer.Customer) CustomerResponse {
	return CustomerResponse{
		ID:        c.ID,
		Email:     c.Email,
		Name:      c.Name,
		Phone:     c.Phone,
		Role:      c.Role,
		CreatedAt: c.CreatedAt,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	_, taken, err := h.queries.CustomerIDByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if taken {
		respondError(w, r, errEmailTaken)
		return
	}

	c, err := h.customers.Register(r.Context(), customer.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	if _, err := h.startSession(w, r, c); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCustomerResponse(c))
}

// Login resolves the email through the read model and checks the password
// against the customer's event stream.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	customerID, found, err := h.queries.CustomerIDByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !found {
		respondError(w, r, customer.ErrInvalidCredentials)
		return
	}
	c, err := h.customers.Get(r.Context(), customerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !auth.CheckPassword(req.Password, c.PasswordHash) {
		respondError(w, r, customer.ErrInvalidCredentials)
		return
	}

	sessionID, err := h.startSession(w, r, c)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.customers.RecordLogin(r.Context(), c.ID, sessionID, middleware.ClientIP(r), r.UserAgent()); err != nil {
		logging.FromCtx(r.Context()).Warn("record login", "customer_id", c.ID, "err", err)
	}
	if auth.NeedsRehash(c.PasswordHash) {
		// same password, current bcrypt cost
		if err := h.customers.ChangePassword(r.Context(), c.ID, req.Password, req.Password); err != nil {
			logging.FromCtx(r.Context()).Warn("rehash password", "customer_id", c.ID, "err", err)
		}
	}
	respondJSON(w, http.StatusOK, toCustomerResponse(c))
}

// Logout always clears the cookies, even for an expired access token.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		sessionID = cookie.Value
	}
	if sessionID != "" {
		if err := h.readStore.Delete(r.Context(), readmodel.CollectionAuthSessions, sessionID); err != nil {
			logging.FromCtx(r.Context()).Warn("delete auth session", "err", err)
		}
	}
	if customerID := middleware.CustomerID(r.Context()); customerID != "" {
		if err := h.customers.RecordLogout(r.Context(), customerID, sessionID); err != nil {
			logging.FromCtx(r.Context()).Warn("record logout", "customer_id", customerID, "err", err)
		}
	}

	h.clearAuthCookies(w)
	respondMessage(w, http.StatusOK, "Logout successful")
}

// Refresh rotates the session: the refresh token must match the stored
// hash of a live session, which is then replaced by a new one.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		respondError(w, r, errUnauthorized)
		return
	}
	sid, err := r.Cookie(sessionCookie)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, errSessionGone)
		return
	}

	customerID, err := h.jwtService.ValidateRefreshToken(refresh.Value)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, err)
		return
	}

	data, ok, err := h.readStore.Get(r.Context(), readmodel.CollectionAuthSessions, sid.Value)
	if err != nil {
		respondError(w, r, err)
		return
	}
	session, isSession := data.(*readmodel.AuthSessionReadModel)
	if !ok || !isSession || session.CustomerID != customerID {
		h.clearAuthCookies(w)
		respondError(w, r, errSessionGone)
		return
	}
	if time.Now().After(session.ExpiresAt) ||
		subtle.ConstantTimeCompare([]byte(hashToken(refresh.Value)), []byte(session.RefreshTokenHash)) != 1 {
		_ = h.readStore.Delete(r.Context(), readmodel.CollectionAuthSessions, sid.Value)
		h.clearAuthCookies(w)
		respondError(w, r, errSessionGone)
		return
	}

	c, err := h.customers.Get(r.Context(), customerID)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, errSessionGone)
		return
	}

	if err := h.readStore.Delete(r.Context(), readmodel.CollectionAuthSessions, sid.Value); err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := h.startSession(w, r, c); err != nil {
		respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Token refreshed")
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), middleware.CustomerID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *AuthHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.customers.UpdateProfile(r.Context(), middleware.CustomerID(r.Context()), req.Name, req.Phone)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.customers.ChangePassword(r.Context(), middleware.CustomerID(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Password changed successfully")
}

// startSession issues a token pair, stores the refresh session and sets the
// cookies. It returns the new session id.
func (h *AuthHandlers) startSession(w http.ResponseWriter, r *http.Request, c *customer.Customer) (string, error) {
	accessToken, accessExpiry, err := h.jwtService.GenerateAccessToken(c.ID, c.Email, c.Role)
	if err != nil {
		return "", err
	}
	refreshToken, refreshExpiry, err := h.jwtService.GenerateRefreshToken(c.ID)
	if err != nil {
		return "", err
	}

	sessionID := uuid.NewString()
	err = h.readStore.Set(r.Context(), readmodel.CollectionAuthSessions, sessionID, &readmodel.AuthSessionReadModel{
		ID:               sessionID,
		CustomerID:       c.ID,
		RefreshTokenHash: hashToken(refreshToken),
		ExpiresAt:        refreshExpiry,
		CreatedAt:        time.Now().UTC(),
		IPAddress:        middleware.ClientIP(r),
		UserAgent:        r.UserAgent(),
	})
	if err != nil {
		return "", err
	}

	secure := r.TLS != nil
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		Expires:  accessExpiry,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	return sessionID, nil
}

func (h *AuthHandlers) clearAuthCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{middleware.AccessTokenCookie, "/"},
		{refreshTokenCookie, refreshCookiePath},
		{sessionCookie, "/"},
	} {
		http.SetCookie(w, &http.Cookie{Name: c.name, Value: "", Path: c.path, MaxAge: -1, HttpOnly: true})
	}
}
