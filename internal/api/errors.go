package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/customer"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/query"
)

var (
	errBadBody      = errors.New("request body is not valid JSON")
	errEmailTaken   = errors.New("email already registered")
	errUnauthorized = errors.New("authentication required")
	errSessionGone  = errors.New("session expired or revoked")
)

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

type apiError struct {
	status int
	body   errorBody
}

func newAPIError(status int, code, message, field string) apiError {
	return apiError{status: status, body: errorBody{Message: message, Code: code, Field: field}}
}

var (
	notFound = []error{
		product.ErrProductNotFound,
		order.ErrOrderNotFound,
		customer.ErrCustomerNotFound,
		address.ErrAddressNotFound,
		cart.ErrLineNotFound,
	}
	invalidInput = []error{
		errBadBody,
		auth.ErrPasswordTooShort,
		auth.ErrPasswordTooLong,
		customer.ErrInvalidEmail,
		customer.ErrInvalidName,
		product.ErrInvalidName,
		product.ErrInvalidPrice,
		cart.ErrInvalidQuantity,
		cart.ErrInvalidProduct,
		cart.ErrInvalidPrice,
		inventory.ErrInvalidQuantity,
		order.ErrEmptyOrder,
		order.ErrMissingCustomer,
		order.ErrInvalidPaymentMethod,
	}
	businessRules = []error{
		order.ErrInvalidStatus,
		order.ErrOrderAlreadyPaid,
		order.ErrOrderNotPaid,
		order.ErrMissingPaymentID,
		order.ErrOrderCancelled,
		order.ErrInvalidRefundAmount,
		payment.ErrPaymentMismatch,
		payment.ErrChallengeCodeUnsupported,
	}
	conflicts = []error{
		store.ErrVersionConflict,
		command.ErrDuplicateInFlight,
		command.ErrIdempotencyKeyReused,
		errEmailTaken,
	}
	forbidden = []error{
		query.ErrForbidden,
		payment.ErrForbidden,
		payment.ErrAdminOnly,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// classify maps a service error to its HTTP status and body. The second
// return is false for errors that are not part of the API contract.
func classify(err error) (apiError, bool) {
	var validation *checkout.ValidationError
	var fieldErr *address.FieldError
	var gatewayErr *payment.GatewayError

	switch {
	case errors.As(err, &validation):
		return newAPIError(http.StatusBadRequest, validation.Code, validation.Message, validation.Field), true
	case errors.As(err, &fieldErr):
		return newAPIError(http.StatusBadRequest, "invalid_address", fieldErr.Error(), fieldErr.Field), true
	case errors.As(err, &gatewayErr):
		return newAPIError(http.StatusBadRequest, "payment_failed", gatewayErr.Message, ""), true
	case errors.Is(err, payment.ErrInvalidCallbackHash), errors.Is(err, payment.ErrInvalidCallback):
		return newAPIError(http.StatusBadRequest, "integrity", "invalid request", ""), true
	case errors.Is(err, inventory.ErrInsufficientStock):
		return newAPIError(http.StatusBadRequest, "insufficient_stock", err.Error(), ""), true
	case isAny(err, notFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), ""), true
	case isAny(err, invalidInput):
		return newAPIError(http.StatusBadRequest, "validation", err.Error(), ""), true
	case isAny(err, businessRules):
		return newAPIError(http.StatusBadRequest, "business_rule", err.Error(), ""), true
	case isAny(err, conflicts):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), ""), true
	case isAny(err, forbidden):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), ""), true
	case errors.Is(err, customer.ErrInvalidCredentials):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), ""), true
	case errors.Is(err, errUnauthorized), errors.Is(err, errSessionGone),
		errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), ""), true
	}
	return newAPIError(http.StatusInternalServerError, "internal", "an unexpected error occurred, please try again", ""), false
}

// respondError writes the error body. Unexpected errors are logged and
// replaced with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	e, known := classify(err)
	if !known {
		logging.FromCtx(r.Context()).Error("request failed", "err", err)
	}
	writeJSON(w, e.status, e.body)
}

type successBody struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successBody{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, successBody{Success: true, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
