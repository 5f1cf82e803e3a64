package api

import (
	"log/slog"
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/domain/customer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Handlers     *Handlers
	AuthHandlers *AuthHandlers
	JWTService   *auth.JWTService
	WebDir       string
	Logger       *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := cfg.Handlers
	ah := cfg.AuthHandlers

	authed := middleware.Authenticate(cfg.JWTService)
	optional := middleware.OptionalAuth(cfg.JWTService)
	admin := func(next http.Handler) http.Handler {
		return authed(middleware.RequireRole(customer.RoleAdmin)(next))
	}

	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(fn))
	}
	adminOnly := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, admin(fn))
	}

	// Static files (web UI)
	if cfg.WebDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.WebDir)))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, http.StatusOK, "ok")
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// Auth
	mux.HandleFunc("POST /api/auth/register", ah.Register)
	mux.HandleFunc("POST /api/auth/login", ah.Login)
	mux.HandleFunc("POST /api/auth/refresh", ah.Refresh)
	mux.Handle("POST /api/auth/logout", optional(http.HandlerFunc(ah.Logout)))
	private("GET /api/auth/me", ah.Me)
	private("PUT /api/auth/me", ah.UpdateProfile)
	private("PUT /api/auth/password", ah.ChangePassword)

	// Products
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	adminOnly("POST /api/admin/products", h.CreateProduct)
	adminOnly("PUT /api/admin/products/{id}", h.UpdateProduct)
	adminOnly("DELETE /api/admin/products/{id}", h.DeleteProduct)
	adminOnly("POST /api/admin/products/{id}/restock", h.RestockProduct)

	// Cart
	private("GET /api/cart", h.GetCart)
	private("DELETE /api/cart", h.ClearCart)
	private("POST /api/cart/items", h.AddToCart)
	private("PUT /api/cart/items/{key}", h.UpdateCartItem)
	private("DELETE /api/cart/items/{key}", h.RemoveFromCart)

	// Addresses
	private("GET /api/addresses", h.ListAddresses)
	private("POST /api/addresses", h.AddAddress)
	private("PUT /api/addresses/{id}", h.UpdateAddress)
	private("DELETE /api/addresses/{id}", h.RemoveAddress)
	private("POST /api/addresses/{id}/default", h.SetDefaultAddress)

	// Checkout
	private("GET /api/checkout/session", h.GetCheckoutSession)
	private("PUT /api/checkout/session", h.UpdateCheckoutSession)
	private("POST /api/checkout", h.SubmitCheckout)
	private("POST /api/checkout/3ds/verify", h.VerifyThreeDS)

	// Orders
	private("POST /api/orders", h.PlaceOrder)
	private("GET /api/orders", h.ListMyOrders)
	private("GET /api/orders/{id}", h.GetOrder)
	private("GET /api/orders/{id}/status", h.GetOrderStatus)
	adminOnly("GET /api/admin/orders", h.ListAllOrders)
	adminOnly("PUT /api/admin/orders/{id}/status", h.UpdateOrderStatus)
	adminOnly("POST /api/admin/orders/{id}/refund", h.RefundPayment)

	// Payments. Gateway callbacks carry no session and are verified by hash.
	private("POST /api/payments/initialize", h.InitializePayment)
	private("POST /api/payments/initialize-3d", h.Initialize3DPayment)
	mux.HandleFunc("POST /api/payments/callback", h.PaymentCallback)
	mux.HandleFunc("POST /api/payments/3d-callback", h.ThreeDSCallback)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return middleware.Recover(middleware.RequestLogger(logger)(middleware.Metrics(mux)))
}
