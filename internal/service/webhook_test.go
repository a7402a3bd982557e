package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/payment"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository/memory"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

const testWebhookSecret = "whsec_test"

func newTestWebhookService(store *memory.Store, pub *mockPublisher) *WebhookService {
	bold := payment.NewBold(payment.BoldConfig{
		APIKey:          "key",
		IntegritySecret: "integrity",
		WebhookSecret:   testWebhookSecret,
	})
	svc := NewWebhookService(store, payment.NewRegistry(bold), pub, nil, true, newTestLogger())
	svc.now = func() time.Time { return checkoutNow.Add(time.Minute) }
	return svc
}

func callbackBody(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(fields)
	require.NoError(t, err)
	return body
}

func signedHeader(body []byte, key string) http.Header {
	h := http.Header{}
	h.Set("X-Bold-Signature", payment.SignBold(testWebhookSecret, body))
	if key != "" {
		h.Set(IdempotencyHeader, key)
	}
	return h
}

func deliver(t *testing.T, svc *WebhookService, key string, fields map[string]any) (*domain.TransitionResult, error) {
	t.Helper()
	body := callbackBody(t, fields)
	return svc.Handle(context.Background(), domain.ProviderBold, signedHeader(body, key), body)
}

// pendingCheckout creates AVA-BOLD-1700000000000 holding 2 units of p1.
func pendingCheckout(t *testing.T, store *memory.Store) string {
	t.Helper()
	seedProduct(store, "p1", 5, 50000)
	checkout, _ := newTestCheckoutService(store, &fakeProvider{name: domain.ProviderBold}, newLenientPublisher())
	redirect, err := checkout.Checkout(context.Background(), checkoutRequest(
		domain.CheckoutLine{ProductID: "p1", Quantity: 2},
	))
	require.NoError(t, err)
	return redirect.OrderID
}

func status(orderID, s string) map[string]any {
	return map[string]any{
		"orderId":       orderID,
		"status":        s,
		"amount":        100000,
		"currency":      "COP",
		"transactionId": "tx-" + s,
	}
}

// --- Signature Tests ---

func TestHandle_RejectsBadSignature(t *testing.T) {
	store := memory.NewStore()
	svc := newTestWebhookService(store, newLenientPublisher())

	body := callbackBody(t, status("AVA-BOLD-1", "APPROVED"))
	h := http.Header{}
	h.Set("X-Bold-Signature", "deadbeef")

	_, err := svc.Handle(context.Background(), domain.ProviderBold, h, body)

	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	_, exists := store.Order("AVA-BOLD-1")
	assert.False(t, exists)
	assert.Empty(t, store.EventList())
}

func TestHandle_RejectsMissingSignature(t *testing.T) {
	store := memory.NewStore()
	svc := newTestWebhookService(store, newLenientPublisher())

	body := callbackBody(t, status("AVA-BOLD-1", "APPROVED"))
	_, err := svc.Handle(context.Background(), domain.ProviderBold, http.Header{}, body)

	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestHandle_UnsignedAllowedWithoutSecret(t *testing.T) {
	store := memory.NewStore()
	bold := payment.NewBold(payment.BoldConfig{})
	svc := NewWebhookService(store, payment.NewRegistry(bold), newLenientPublisher(), nil, false, newTestLogger())

	body := callbackBody(t, status("AVA-BOLD-1", "PENDING"))
	res, err := svc.Handle(context.Background(), domain.ProviderBold, http.Header{}, body)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
}

// --- Validation Tests ---

func TestHandle_MissingFields(t *testing.T) {
	svc := newTestWebhookService(memory.NewStore(), newLenientPublisher())

	_, err := deliver(t, svc, "", map[string]any{"status": "APPROVED"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = deliver(t, svc, "", map[string]any{"orderId": "AVA-BOLD-1"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestHandle_UnknownStatus(t *testing.T) {
	svc := newTestWebhookService(memory.NewStore(), newLenientPublisher())

	res, err := deliver(t, svc, "", status("AVA-BOLD-1", "REFUNDED"))

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	require.NotNil(t, res)
	assert.Equal(t, "AVA-BOLD-1", res.OrderID)
}

// --- Transition Tests ---

func TestHandle_ApprovedConfirmsReservation(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	pub := newLenientPublisher()
	svc := newTestWebhookService(store, pub)

	res, err := deliver(t, svc, "evt-1", status(orderID, "APPROVED"))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	assert.True(t, res.Accepted())
	assert.Equal(t, domain.PaymentStatusPending, res.Previous)

	order, _ := store.Order(orderID)
	assert.Equal(t, domain.PaymentStatusApproved, order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusApproved, order.Status)
	assert.Equal(t, "tx-APPROVED", order.TransactionID)
	require.NotNil(t, order.PaidAt)

	items := store.ItemsOf(orderID)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, int64(50000), items[0].Price)

	p := store.Product("p1")
	assert.Equal(t, 3, p.Stock)
	assert.Zero(t, p.Reserved)
	pub.AssertCalled(t, "PublishOrderPayment", mock.Anything, mock.Anything, domain.PaymentStatusPending)
}

func TestHandle_ApprovedReplayIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	svc := newTestWebhookService(store, newLenientPublisher())

	first, err := deliver(t, svc, "evt-1", status(orderID, "APPROVED"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApplied, first.Outcome)

	// Same key.
	dup, err := deliver(t, svc, "evt-1", status(orderID, "APPROVED"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, dup.Outcome)
	assert.Equal(t, domain.OutcomeApplied, dup.Recorded)
	assert.True(t, dup.Accepted())

	// Different key, same status.
	replay, err := deliver(t, svc, "evt-2", status(orderID, "APPROVED"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, replay.Outcome)
	assert.True(t, replay.Accepted())

	assert.Len(t, store.ItemsOf(orderID), 1)
	assert.Equal(t, 1, store.OrderCount())
	assert.Equal(t, 3, store.Product("p1").Stock)
}

func TestHandle_DeclinedAfterApprovedIsRejected(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	pub := newLenientPublisher()
	svc := newTestWebhookService(store, pub)

	_, err := deliver(t, svc, "evt-1", status(orderID, "APPROVED"))
	require.NoError(t, err)
	before, _ := store.Order(orderID)

	res, err := deliver(t, svc, "evt-2", status(orderID, "DECLINED"))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	assert.False(t, res.Accepted())
	assert.Equal(t, domain.PaymentStatusApproved, res.Current)

	after, _ := store.Order(orderID)
	assert.Equal(t, before, after)
	assert.Equal(t, 3, store.Product("p1").Stock)

	evt, _ := store.Event(domain.ProviderBold, "evt-2")
	assert.Equal(t, domain.OutcomeRejected, evt.Outcome)
	pub.AssertNumberOfCalls(t, "PublishOrderPayment", 1)
}

func TestHandle_DeclinedReleasesReservation(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	svc := newTestWebhookService(store, newLenientPublisher())

	res, err := deliver(t, svc, "", status(orderID, "DECLINED"))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	p := store.Product("p1")
	assert.Equal(t, 5, p.Stock)
	assert.Zero(t, p.Reserved)
	assert.Empty(t, store.ItemsOf(orderID))
}

func TestHandle_ErrorThenApproved(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	svc := newTestWebhookService(store, newLenientPublisher())

	_, err := deliver(t, svc, "", status(orderID, "ERROR"))
	require.NoError(t, err)

	res, err := deliver(t, svc, "", status(orderID, "APPROVED"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	assert.Equal(t, domain.PaymentStatusError, res.Previous)

	// The reservation was released on ERROR, so stock is taken directly.
	assert.Equal(t, 3, store.Product("p1").Stock)
	assert.Len(t, store.ItemsOf(orderID), 1)
}

func TestHandle_ApprovedAfterCancelKeepsStock(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	orders := NewOrderService(store, newLenientPublisher(), nil, newTestLogger())
	_, err := orders.UpdateStatus(context.Background(), orderID, domain.OrderStatusCanceled)
	require.NoError(t, err)
	require.Equal(t, 5, store.Product("p1").Stock)

	svc := newTestWebhookService(store, newLenientPublisher())
	res, err := deliver(t, svc, "evt-1", status(orderID, "APPROVED"))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	order, _ := store.Order(orderID)
	assert.Equal(t, domain.OrderStatusCanceled, order.Status)
	assert.Equal(t, domain.PaymentStatusApproved, order.PaymentStatus)

	p := store.Product("p1")
	assert.Equal(t, 5, p.Stock)
	assert.Zero(t, p.Reserved)
	assert.Empty(t, store.ItemsOf(orderID))
}

func TestHandle_CreatesUnknownOrderFromCallback(t *testing.T) {
	store := memory.NewStore()
	seedProduct(store, "p9", 4, 30000)
	svc := newTestWebhookService(store, newLenientPublisher())

	fields := status("AVA-BOLD-42", "APPROVED")
	fields["email"] = "luis@example.com"
	fields["cartItems"] = []map[string]any{
		{"id": "p9", "name": "Gorra", "price": 30000, "quantity": 1},
		{"id": "p9", "name": "Gorra", "price": 30000, "quantity": 1},
	}
	res, err := deliver(t, svc, "", fields)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	assert.Empty(t, res.Previous)

	order, ok := store.Order("AVA-BOLD-42")
	require.True(t, ok)
	assert.Equal(t, "luis@example.com", order.Email)
	items := store.ItemsOf("AVA-BOLD-42")
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 2, store.Product("p9").Stock)
}

func TestHandle_DerivedKeyDeduplicates(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	svc := newTestWebhookService(store, newLenientPublisher())

	_, err := deliver(t, svc, "", status(orderID, "DECLINED"))
	require.NoError(t, err)
	res, err := deliver(t, svc, "", status(orderID, "DECLINED"))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
	assert.Len(t, store.EventList(), 1)
}

func TestHandle_DatabaseFailureRollsBack(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	store.FailApply(errors.New("connection reset"))
	svc := newTestWebhookService(store, newLenientPublisher())

	_, err := deliver(t, svc, "evt-1", status(orderID, "APPROVED"))

	require.Error(t, err)
	assert.Empty(t, store.EventList())

	store.FailApply(nil)
	res, err := deliver(t, svc, "evt-1", status(orderID, "APPROVED"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
}

func TestIdempotencyKey(t *testing.T) {
	cb := &domain.PaymentCallback{OrderID: "o", Status: "approved", TransactionID: "t"}

	h := http.Header{}
	h.Set(IdempotencyHeader, " key-1 ")
	assert.Equal(t, "key-1", idempotencyKey(h, cb))

	cb.EventID = "evt"
	assert.Equal(t, "evt", idempotencyKey(http.Header{}, cb))

	cb.EventID = ""
	assert.Equal(t, hashToken("o|APPROVED|t"), idempotencyKey(http.Header{}, cb))
}
