package checkout

import (
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/payment"
)

// DefaultMethod is preselected when the customer has not chosen one.
const DefaultMethod = order.MethodCreditCard

// SelectPaymentMethod resolves the customer's choice. An empty choice
// selects the default; unknown values are rejected.
func SelectPaymentMethod(raw string) (order.PaymentMethod, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultMethod, nil
	}
	m := order.PaymentMethod(raw)
	if !m.Valid() {
		return "", invalid(FieldMethod, "invalid_payment_method", "payment method is not supported")
	}
	return m, nil
}

// RequiresCard reports whether the method collects card details and goes
// through the gateway.
func RequiresCard(m order.PaymentMethod) bool {
	return m == order.MethodCreditCard
}

// ValidateForMethod runs the input checks the method needs. Bank transfer
// and cash on delivery need none.
func ValidateForMethod(m order.PaymentMethod, card *payment.Card, now time.Time) error {
	if !RequiresCard(m) {
		return nil
	}
	if card == nil {
		return invalid(FieldCardHolder, "card_required", "card details are required")
	}
	return ValidateCard(*card, now)
}
