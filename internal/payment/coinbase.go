package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/httpclient"
)

const (
	coinbaseSignatureHeader = "X-CC-Webhook-Signature"
	coinbaseAPIVersion      = "2018-03-22"
)

// JSONPoster sends JSON requests. *httpclient.CircuitBreakerClient
// satisfies it.
type JSONPoster interface {
	PostJSON(ctx context.Context, url string, body []byte, header http.Header) (*http.Response, error)
}

// CoinbaseConfig holds Coinbase Commerce credentials.
type CoinbaseConfig struct {
	APIKey        string
	WebhookSecret string
	APIURL        string
	RedirectURL   string
	CancelURL     string
}

// Coinbase creates Coinbase Commerce charges.
type Coinbase struct {
	cfg    CoinbaseConfig
	client JSONPoster
}

// NewCoinbase creates a Coinbase provider that calls the API through
// client.
func NewCoinbase(cfg CoinbaseConfig, client JSONPoster) *Coinbase {
	return &Coinbase{cfg: cfg, client: client}
}

func (c *Coinbase) Name() string { return domain.ProviderCoinbase }

type coinbaseMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type createChargeRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PricingType string            `json:"pricing_type"`
	LocalPrice  coinbaseMoney     `json:"local_price"`
	Metadata    map[string]string `json:"metadata"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	CancelURL   string            `json:"cancel_url,omitempty"`
}

type chargeResponse struct {
	Data struct {
		ID        string `json:"id"`
		Code      string `json:"code"`
		HostedURL string `json:"hosted_url"`
	} `json:"data"`
}

// CreateCheckout creates a fixed price charge and returns its hosted page.
func (c *Coinbase) CreateCheckout(ctx context.Context, req CheckoutRequest) (*domain.PaymentRedirect, error) {
	if c.cfg.APIKey == "" {
		return nil, apperrors.PaymentFailed("coinbase is not configured")
	}

	body, err := json.Marshal(createChargeRequest{
		Name:        "AvaShop " + req.OrderID,
		Description: req.Description,
		PricingType: "fixed_price",
		LocalPrice:  coinbaseMoney{Amount: FormatAmount(req.Amount, req.Currency), Currency: req.Currency},
		Metadata:    map[string]string{"order_id": req.OrderID, "email": req.Email},
		RedirectURL: c.cfg.RedirectURL,
		CancelURL:   c.cfg.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge: %w", err)
	}

	header := http.Header{}
	header.Set("X-CC-Api-Key", c.cfg.APIKey)
	header.Set("X-CC-Version", coinbaseAPIVersion)
	header.Set("Idempotency-Key", req.OrderID)

	resp, err := c.client.PostJSON(ctx, c.cfg.APIURL+"/charges", body, header)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.PaymentFailed("coinbase is unavailable"), err.Error())
	}
	if resp.StatusCode >= 300 {
		rerr := httpclient.ReadResponseError(resp, "coinbase")
		return nil, apperrors.Wrap(apperrors.PaymentFailed("coinbase rejected the charge"), rerr.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	var out chargeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, apperrors.Wrap(apperrors.PaymentFailed("coinbase returned an unreadable charge"), err.Error())
	}
	if out.Data.HostedURL == "" {
		return nil, apperrors.PaymentFailed("coinbase charge has no hosted url")
	}

	return &domain.PaymentRedirect{
		Provider:    domain.ProviderCoinbase,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		RedirectURL: out.Data.HostedURL,
		Fields:      map[string]string{"chargeCode": out.Data.Code, "chargeId": out.Data.ID},
	}, nil
}

// VerifyWebhook checks X-CC-Webhook-Signature against hex(HMAC-SHA256(
// secret, body)).
func (c *Coinbase) VerifyWebhook(header http.Header, body []byte) (bool, error) {
	if c.cfg.WebhookSecret == "" {
		return false, nil
	}
	if err := verifyHMAC(c.cfg.WebhookSecret, body, header.Get(coinbaseSignatureHeader)); err != nil {
		return false, err
	}
	return true, nil
}

// SignCoinbase signs body the way Coinbase Commerce does.
func SignCoinbase(secret string, body []byte) string {
	return hmacHex(secret, body)
}

type coinbaseEvent struct {
	Event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Code     string            `json:"code"`
			Metadata map[string]string `json:"metadata"`
			Pricing  struct {
				Local coinbaseMoney `json:"local"`
			} `json:"pricing"`
		} `json:"data"`
	} `json:"event"`
}

// coinbaseStatuses maps charge event types onto callback statuses.
var coinbaseStatuses = map[string]string{
	"charge:created":   domain.CallbackPending,
	"charge:pending":   domain.CallbackPending,
	"charge:confirmed": domain.CallbackApproved,
	"charge:resolved":  domain.CallbackApproved,
	"charge:failed":    domain.CallbackDeclined,
	"charge:expired":   domain.CallbackDeclined,
	"charge:delayed":   domain.CallbackError,
}

// ParseWebhook maps a Coinbase Commerce event envelope onto a callback.
// Unknown event types keep their raw type so validation rejects them.
func (c *Coinbase) ParseWebhook(body []byte) (*domain.PaymentCallback, error) {
	var in coinbaseEvent
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, apperrors.InvalidInput("malformed coinbase event")
	}

	ev := in.Event
	status, ok := coinbaseStatuses[ev.Type]
	if !ok {
		status = ev.Type
	}

	currency := ev.Data.Pricing.Local.Currency
	amount, err := ParseAmount(ev.Data.Pricing.Local.Amount, currency)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid amount: %v", err))
	}

	return &domain.PaymentCallback{
		Provider:      domain.ProviderCoinbase,
		OrderID:       ev.Data.Metadata["order_id"],
		Status:        status,
		Amount:        amount,
		Currency:      currency,
		TransactionID: ev.Data.Code,
		EventID:       ev.ID,
		Email:         ev.Data.Metadata["email"],
		ReceivedAt:    time.Now().UTC(),
	}, nil
}
