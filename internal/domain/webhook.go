package domain

import (
	"encoding/json"
	"time"
)

// WebhookEvent records one processed payment callback. The pair
// (Provider, IdempotencyKey) is unique.
type WebhookEvent struct {
	ID             string            `json:"id"`
	Provider       string            `json:"provider"`
	IdempotencyKey string            `json:"idempotency_key"`
	OrderID        string            `json:"order_id"`
	Status         string            `json:"status"`
	Outcome        TransitionOutcome `json:"outcome"`
	SignatureValid bool              `json:"signature_valid"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	ReceivedAt     time.Time         `json:"received_at"`
}
