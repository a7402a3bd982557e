package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

const boldSignatureHeader = "X-Bold-Signature"

// BoldConfig holds the Bold button credentials.
type BoldConfig struct {
	APIKey          string
	IntegritySecret string
	WebhookSecret   string
	CheckoutURL     string
	RedirectURL     string
}

// Bold builds Bold payment button payloads locally; no API call is needed
// to open a checkout.
type Bold struct {
	cfg BoldConfig
}

// NewBold creates a Bold provider.
func NewBold(cfg BoldConfig) *Bold {
	return &Bold{cfg: cfg}
}

func (b *Bold) Name() string { return domain.ProviderBold }

// IntegritySignature is hex(sha256(orderID + amount + currency + secret)).
func (b *Bold) IntegritySignature(orderID string, amount int64, currency string) string {
	return sha256Hex(orderID + strconv.FormatInt(amount, 10) + currency + b.cfg.IntegritySecret)
}

// CreateCheckout returns the button fields and a hosted checkout link.
func (b *Bold) CreateCheckout(_ context.Context, req CheckoutRequest) (*domain.PaymentRedirect, error) {
	if b.cfg.APIKey == "" || b.cfg.IntegritySecret == "" {
		return nil, apperrors.PaymentFailed("bold is not configured")
	}

	fields := map[string]string{
		"orderId":            req.OrderID,
		"amount":             strconv.FormatInt(req.Amount, 10),
		"currency":           req.Currency,
		"apiKey":             b.cfg.APIKey,
		"integritySignature": b.IntegritySignature(req.OrderID, req.Amount, req.Currency),
		"description":        req.Description,
	}
	if b.cfg.RedirectURL != "" {
		fields["redirectionUrl"] = b.cfg.RedirectURL + "?order=" + url.QueryEscape(req.OrderID)
	}
	if req.Email != "" {
		fields["customerEmail"] = req.Email
	}

	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}

	return &domain.PaymentRedirect{
		Provider:    domain.ProviderBold,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		RedirectURL: b.cfg.CheckoutURL + "?" + q.Encode(),
		Fields:      fields,
	}, nil
}

// VerifyWebhook checks X-Bold-Signature against hex(HMAC-SHA256(secret,
// base64(body))).
func (b *Bold) VerifyWebhook(header http.Header, body []byte) (bool, error) {
	if b.cfg.WebhookSecret == "" {
		return false, nil
	}
	encoded := base64.StdEncoding.EncodeToString(body)
	if err := verifyHMAC(b.cfg.WebhookSecret, []byte(encoded), header.Get(boldSignatureHeader)); err != nil {
		return false, err
	}
	return true, nil
}

// SignBold signs body the way Bold does. Used by tests and local tooling.
func SignBold(secret string, body []byte) string {
	return hmacHex(secret, []byte(base64.StdEncoding.EncodeToString(body)))
}

type boldCallback struct {
	OrderID         string                  `json:"orderId"`
	Status          string                  `json:"status"`
	Amount          json.Number             `json:"amount"`
	Currency        string                  `json:"currency"`
	TransactionID   string                  `json:"transactionId"`
	EventID         string                  `json:"eventId"`
	Email           string                  `json:"email"`
	CartItems       []domain.CartItem       `json:"cartItems"`
	ShippingDetails *domain.ShippingDetails `json:"shippingDetails"`
}

// ParseWebhook decodes the storefront callback format.
func (b *Bold) ParseWebhook(body []byte) (*domain.PaymentCallback, error) {
	var in boldCallback
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, apperrors.InvalidInput("malformed callback body")
	}

	amount, err := ParseAmount(in.Amount.String(), in.Currency)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid amount: %v", err))
	}

	return &domain.PaymentCallback{
		Provider:        domain.ProviderBold,
		OrderID:         in.OrderID,
		Status:          in.Status,
		Amount:          amount,
		Currency:        in.Currency,
		TransactionID:   in.TransactionID,
		EventID:         in.EventID,
		Email:           in.Email,
		CartItems:       in.CartItems,
		ShippingDetails: in.ShippingDetails,
		ReceivedAt:      time.Now().UTC(),
	}, nil
}
