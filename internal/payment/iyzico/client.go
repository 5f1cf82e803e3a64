// Package iyzico is a payment.Gateway backed by the Iyzico REST API.
package iyzico

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const Name = "iyzico"

const (
	pathAuth          = "/payment/auth"
	path3DSInitialize = "/payment/3dsecure/initialize"
	path3DSAuth       = "/payment/3dsecure/auth"
	pathRefund        = "/v2/payment/refund"
)

type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	locale     string
	httpClient *http.Client
	// identityNumber is sent for buyers that have none on file.
	identityNumber string
}

func NewClient(baseURL, apiKey, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		secretKey:  secretKey,
		locale:     "tr",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return Name }

// WithIdentityNumber sets the buyer identity number used when a request
// carries none.
func (c *Client) WithIdentityNumber(n string) *Client {
	c.identityNumber = n
	return c
}

// authorization builds the IYZWSv2 header:
// base64("apiKey:K&randomKey:R&signature:hex(HMAC-SHA256(secret, R+path+body)))").
func (c *Client) authorization(randomKey, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(randomKey + path))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	raw := "apiKey:" + c.apiKey + "&randomKey:" + randomKey + "&signature:" + signature
	return "IYZWSv2 " + base64.StdEncoding.EncodeToString([]byte(raw))
}

type baseResponse struct {
	Status         string `json:"status"`
	ErrorCode      string `json:"errorCode"`
	ErrorMessage   string `json:"errorMessage"`
	ConversationID string `json:"conversationId"`
}

func (r baseResponse) err() error {
	if r.Status == payment.StatusSuccess {
		return nil
	}
	msg := r.ErrorMessage
	if msg == "" {
		msg = "payment failed"
	}
	return &payment.GatewayError{Code: r.ErrorCode, Message: msg}
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	randomKey := strconv.FormatInt(time.Now().UnixMilli(), 10) + uuid.New().String()[:8]

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-iyzi-rnd", randomKey)
	req.Header.Set("Authorization", c.authorization(randomKey, path, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &payment.GatewayError{Code: "unavailable", Message: "payment gateway unavailable"}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &payment.GatewayError{Code: strconv.Itoa(resp.StatusCode), Message: "unexpected gateway response"}
	}
	return nil
}

type paymentCard struct {
	CardHolderName string `json:"cardHolderName"`
	CardNumber     string `json:"cardNumber"`
	ExpireMonth    string `json:"expireMonth"`
	ExpireYear     string `json:"expireYear"`
	CVC            string `json:"cvc"`
	RegisterCard   int    `json:"registerCard"`
}

type buyer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Surname             string `json:"surname"`
	GsmNumber           string `json:"gsmNumber,omitempty"`
	Email               string `json:"email"`
	IdentityNumber      string `json:"identityNumber"`
	RegistrationAddress string `json:"registrationAddress"`
	IP                  string `json:"ip"`
	City                string `json:"city"`
	Country             string `json:"country"`
	ZipCode             string `json:"zipCode,omitempty"`
}

type addressBody struct {
	ContactName string `json:"contactName"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Address     string `json:"address"`
	ZipCode     string `json:"zipCode,omitempty"`
}

type basketItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category1 string `json:"category1"`
	ItemType  string `json:"itemType"`
	Price     string `json:"price"`
}

type paymentRequest struct {
	Locale          string       `json:"locale"`
	ConversationID  string       `json:"conversationId"`
	Price           string       `json:"price"`
	PaidPrice       string       `json:"paidPrice"`
	Currency        string       `json:"currency"`
	Installment     int          `json:"installment"`
	BasketID        string       `json:"basketId"`
	PaymentChannel  string       `json:"paymentChannel"`
	PaymentGroup    string       `json:"paymentGroup"`
	PaymentCard     paymentCard  `json:"paymentCard"`
	Buyer           buyer        `json:"buyer"`
	ShippingAddress addressBody  `json:"shippingAddress"`
	BillingAddress  addressBody  `json:"billingAddress"`
	BasketItems     []basketItem `json:"basketItems"`
	CallbackURL     string       `json:"callbackUrl,omitempty"`
}

type paymentResponse struct {
	baseResponse
	PaymentID          string          `json:"paymentId"`
	BasketID           string          `json:"basketId"`
	PaidPrice          decimal.Decimal `json:"paidPrice"`
	LastFourDigits     string          `json:"lastFourDigits"`
	CardAssociation    string          `json:"cardAssociation"`
	ThreeDSHTMLContent string          `json:"threeDSHtmlContent"`
}

func (r paymentResponse) result() *payment.Result {
	return &payment.Result{
		PaymentID:      r.PaymentID,
		ConversationID: r.ConversationID,
		OrderNumber:    r.BasketID,
		PaidPrice:      r.PaidPrice,
		LastFourDigits: r.LastFourDigits,
		CardBrand:      r.CardAssociation,
	}
}

func toAddress(a address.Address) addressBody {
	return addressBody{
		ContactName: a.FullName,
		City:        a.City,
		Country:     a.Country,
		Address:     a.Street,
		ZipCode:     a.PostalCode,
	}
}

func (c *Client) buildRequest(req payment.AuthorizeRequest, callbackURL string) paymentRequest {
	items := make([]basketItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, basketItem{
			ID:        it.ID,
			Name:      it.Name,
			Category1: it.Category,
			ItemType:  "PHYSICAL",
			Price:     it.Price.StringFixed(2),
		})
	}
	identity := req.Buyer.IdentityNumber
	if identity == "" {
		identity = c.identityNumber
	}
	register := 0
	if req.Card.Register {
		register = 1
	}
	return paymentRequest{
		Locale:         c.locale,
		ConversationID: req.ConversationID,
		Price:          req.Price.StringFixed(2),
		PaidPrice:      req.PaidPrice.StringFixed(2),
		Currency:       req.Currency,
		Installment:    1,
		BasketID:       req.OrderNumber,
		PaymentChannel: "WEB",
		PaymentGroup:   "PRODUCT",
		PaymentCard: paymentCard{
			CardHolderName: req.Card.HolderName,
			CardNumber:     payment.NormalizeCardNumber(req.Card.Number),
			ExpireMonth:    req.Card.ExpireMonth,
			ExpireYear:     "20" + req.Card.ExpireYear,
			CVC:            req.Card.CVC,
			RegisterCard:   register,
		},
		Buyer: buyer{
			ID:                  req.Buyer.ID,
			Name:                req.Buyer.Name,
			Surname:             req.Buyer.Surname,
			GsmNumber:           req.Buyer.Phone,
			Email:               req.Buyer.Email,
			IdentityNumber:      identity,
			RegistrationAddress: req.Buyer.Address.Street,
			IP:                  req.Buyer.IP,
			City:                req.Buyer.Address.City,
			Country:             req.Buyer.Address.Country,
			ZipCode:             req.Buyer.Address.PostalCode,
		},
		ShippingAddress: toAddress(req.ShippingAddress),
		BillingAddress:  toAddress(req.BillingAddress),
		BasketItems:     items,
		CallbackURL:     callbackURL,
	}
}

func (c *Client) Authorize(ctx context.Context, req payment.AuthorizeRequest) (*payment.Result, error) {
	var resp paymentResponse
	if err := c.post(ctx, pathAuth, c.buildRequest(req, ""), &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return resp.result(), nil
}

func (c *Client) Initialize3DS(ctx context.Context, req payment.AuthorizeRequest, callbackURL string) (*payment.ThreeDSResult, error) {
	var resp paymentResponse
	if err := c.post(ctx, path3DSInitialize, c.buildRequest(req, callbackURL), &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	page, err := base64.StdEncoding.DecodeString(resp.ThreeDSHTMLContent)
	if err != nil {
		return nil, &payment.GatewayError{Code: "invalid_3ds_content", Message: "unexpected gateway response"}
	}
	return &payment.ThreeDSResult{
		PaymentID:      resp.PaymentID,
		ConversationID: resp.ConversationID,
		HTMLContent:    string(page),
	}, nil
}

type threeDSAuthRequest struct {
	Locale           string `json:"locale"`
	ConversationID   string `json:"conversationId,omitempty"`
	PaymentID        string `json:"paymentId"`
	ConversationData string `json:"conversationData,omitempty"`
}

func (c *Client) Complete3DS(ctx context.Context, paymentID, conversationData string) (*payment.Result, error) {
	var resp paymentResponse
	in := threeDSAuthRequest{Locale: c.locale, PaymentID: paymentID, ConversationData: conversationData}
	if err := c.post(ctx, path3DSAuth, in, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return resp.result(), nil
}

type refundRequest struct {
	Locale         string `json:"locale"`
	ConversationID string `json:"conversationId"`
	PaymentID      string `json:"paymentId"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
	IP             string `json:"ip"`
	Reason         string `json:"reason,omitempty"`
	Description    string `json:"description,omitempty"`
}

type refundResponse struct {
	baseResponse
	PaymentID     string `json:"paymentId"`
	Price         string `json:"price"`
	HostReference string `json:"hostReference"`
}

func (c *Client) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	in := refundRequest{
		Locale:         c.locale,
		ConversationID: req.ConversationID,
		PaymentID:      req.PaymentID,
		Price:          req.Amount.StringFixed(2),
		Currency:       req.Currency,
		IP:             req.IP,
		Reason:         "other",
		Description:    req.Reason,
	}
	var resp refundResponse
	if err := c.post(ctx, pathRefund, in, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	refundID := resp.HostReference
	if refundID == "" {
		refundID = uuid.New().String()
	}
	return &payment.RefundResult{
		RefundID:  refundID,
		PaymentID: resp.PaymentID,
		Amount:    req.Amount,
	}, nil
}

func (c *Client) VerifyCallback(p payment.CallbackPayload) bool {
	return payment.VerifyCallbackHash(c.secretKey, p)
}
