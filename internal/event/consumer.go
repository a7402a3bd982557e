package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/agamenonmacondo/avashop-sub001/pkg/kafka"
)

// ReviewRequestGroupID is the consumer group issuing review requests.
const ReviewRequestGroupID = "avashop-review-requests"

// ReviewRequester issues a review request for a paid order.
type ReviewRequester interface {
	RequestForOrder(ctx context.Context, orderID string) error
}

// ReviewRequestHandler turns approved payments into review invitations.
type ReviewRequestHandler struct {
	requester ReviewRequester
	logger    *slog.Logger
}

// NewReviewRequestHandler creates the handler.
func NewReviewRequestHandler(requester ReviewRequester, logger *slog.Logger) *ReviewRequestHandler {
	return &ReviewRequestHandler{requester: requester, logger: logger}
}

// Handle processes one avashop.order.approved event.
func (h *ReviewRequestHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != TopicOrderApproved {
		h.logger.WarnContext(ctx, "unexpected event type",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var data OrderPaymentData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}
	if data.OrderID == "" {
		data.OrderID = event.AggregateID
	}

	if err := h.requester.RequestForOrder(ctx, data.OrderID); err != nil {
		return fmt.Errorf("request review for order %s: %w", data.OrderID, err)
	}
	return nil
}

// NewReviewRequestConsumer subscribes handler to approved orders. Wrap
// handler with pkgkafka.IdempotentHandler so redeliveries send one email.
func NewReviewRequestConsumer(brokers []string, handler pkgkafka.Handler, dlq *pkgkafka.DLQProducer, logger *slog.Logger) *pkgkafka.Consumer {
	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers: brokers,
		GroupID: ReviewRequestGroupID,
		Topic:   TopicOrderApproved,
	}, handler, dlq, logger)
}
