package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository/memory"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/pagination"
)

func TestUpdateStatus_Fulfilment(t *testing.T) {
	store := memory.NewStore()
	seedApprovedOrder(store, "AVA-BOLD-1")
	pub := newLenientPublisher()
	svc := NewOrderService(store, pub, nil, newTestLogger())

	o, err := svc.UpdateStatus(context.Background(), "AVA-BOLD-1", domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, o.Status)
	assert.Equal(t, domain.PaymentStatusApproved, o.PaymentStatus)

	o, err = svc.UpdateStatus(context.Background(), "AVA-BOLD-1", domain.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, o.Status)

	pub.AssertCalled(t, "PublishOrderStatusChanged", mock.Anything, "AVA-BOLD-1", domain.OrderStatusShipped, domain.OrderStatusDelivered)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	store := memory.NewStore()
	seedApprovedOrder(store, "AVA-BOLD-1")
	svc := NewOrderService(store, newLenientPublisher(), nil, newTestLogger())

	_, err := svc.UpdateStatus(context.Background(), "AVA-BOLD-1", domain.OrderStatusDelivered)

	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	o, _ := store.Order("AVA-BOLD-1")
	assert.Equal(t, domain.OrderStatusApproved, o.Status)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	store := memory.NewStore()
	seedApprovedOrder(store, "AVA-BOLD-1")
	svc := NewOrderService(store, newLenientPublisher(), nil, newTestLogger())

	_, err := svc.UpdateStatus(context.Background(), "AVA-BOLD-1", "lost")

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestUpdateStatus_CancelPendingReleasesStock(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	inv := &countingInvalidator{}
	svc := NewOrderService(store, newLenientPublisher(), inv, newTestLogger())

	o, err := svc.UpdateStatus(context.Background(), orderID, domain.OrderStatusCanceled)

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, o.Status)
	assert.Equal(t, domain.PaymentStatusPending, o.PaymentStatus)
	assert.Zero(t, store.Product("p1").Reserved)
	assert.Equal(t, 1, inv.n)
}

func TestListOrders_RejectsUnknownStatus(t *testing.T) {
	svc := NewOrderService(memory.NewStore(), newLenientPublisher(), nil, newTestLogger())

	_, _, err := svc.ListOrders(context.Background(), domain.OrderFilter{Status: "lost"})

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestListWebhookEvents(t *testing.T) {
	store := memory.NewStore()
	orderID := pendingCheckout(t, store)
	webhooks := newTestWebhookService(store, newLenientPublisher())
	_, err := deliver(t, webhooks, "evt-1", status(orderID, "APPROVED"))
	require.NoError(t, err)
	_, err = deliver(t, webhooks, "evt-2", status(orderID, "DECLINED"))
	require.NoError(t, err)

	svc := NewOrderService(store, newLenientPublisher(), nil, newTestLogger())
	events, total, err := svc.ListWebhookEvents(context.Background(), orderID, pagination.Params{})

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	outcomes := []domain.TransitionOutcome{events[0].Outcome, events[1].Outcome}
	assert.ElementsMatch(t, []domain.TransitionOutcome{domain.OutcomeApplied, domain.OutcomeRejected}, outcomes)
}
