package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/shopspring/decimal"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	ErrForbidden           = errors.New("order belongs to another customer")
	ErrAdminOnly           = errors.New("admin role required")
	ErrInvalidCallbackHash = errors.New("callback hash mismatch")
	ErrInvalidCallback     = errors.New("callback is missing required fields")
	ErrPaymentMismatch     = errors.New("payment does not belong to this order")

	ErrChallengeCodeUnsupported = errors.New("3-D Secure is confirmed on the bank's page for this payment provider")
)

// ChallengeCodeGateway is implemented by gateways that let the storefront
// collect the 3-D Secure code itself. Other gateways confirm the challenge
// on the bank's page and report back through the 3-D callback.
type ChallengeCodeGateway interface {
	AcceptsChallengeCode() bool
}

// GatewayError is a decline or failure reported by the payment provider.
// Message is shown to the customer as is.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

type Card struct {
	HolderName  string
	Number      string
	ExpireMonth string
	ExpireYear  string
	CVC         string
	Register    bool
}

type Buyer struct {
	ID             string
	Name           string
	Surname        string
	Email          string
	Phone          string
	IdentityNumber string
	IP             string
	Address        address.Address
}

type BasketItem struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
}

// AuthorizeRequest is what every gateway needs to charge a card. Price is
// the sum of the basket; PaidPrice is what the customer is charged.
type AuthorizeRequest struct {
	ConversationID  string
	OrderNumber     string
	Price           decimal.Decimal
	PaidPrice       decimal.Decimal
	Currency        string
	Card            Card
	Buyer           Buyer
	ShippingAddress address.Address
	BillingAddress  address.Address
	Items           []BasketItem
}

// Result is the gateway's record of a captured payment. ConversationID,
// OrderNumber and PaidPrice echo what the payment was started for; empty
// values are not reported by the gateway.
type Result struct {
	PaymentID      string
	ConversationID string
	OrderNumber    string
	PaidPrice      decimal.Decimal
	LastFourDigits string
	CardBrand      string
}

type ThreeDSResult struct {
	PaymentID      string
	ConversationID string
	HTMLContent    string
}

type RefundRequest struct {
	ConversationID string
	PaymentID      string
	Amount         decimal.Decimal
	Currency       string
	IP             string
	Reason         string
}

type RefundResult struct {
	RefundID  string
	PaymentID string
	Amount    decimal.Decimal
}

// CallbackPayload is posted by the gateway to the callback URL.
type CallbackPayload struct {
	PaymentID        string
	ConversationID   string
	Status           string
	ConversationData string
	Hash             string
	ErrorMessage     string
}

// Gateway is a card payment provider. Declines are returned as
// *GatewayError.
type Gateway interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error)
	Initialize3DS(ctx context.Context, req AuthorizeRequest, callbackURL string) (*ThreeDSResult, error)
	Complete3DS(ctx context.Context, paymentID, conversationData string) (*Result, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	VerifyCallback(p CallbackPayload) bool
}
