package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	pkgkafka "github.com/agamenonmacondo/avashop-sub001/pkg/kafka"
	"github.com/agamenonmacondo/avashop-sub001/pkg/logger"
)

// Kafka topics for storefront events. Payment outcomes use
// avashop.order.<payment status>.
var (
	TopicOrderPending       = pkgkafka.Topic("order", domain.PaymentStatusPending)
	TopicOrderApproved      = pkgkafka.Topic("order", domain.PaymentStatusApproved)
	TopicOrderDeclined      = pkgkafka.Topic("order", domain.PaymentStatusDeclined)
	TopicOrderError         = pkgkafka.Topic("order", domain.PaymentStatusError)
	TopicOrderStatusChanged = pkgkafka.Topic("order", "status_changed")
	TopicReviewRequested    = pkgkafka.Topic("review", "requested")
	TopicReviewSubmitted    = pkgkafka.Topic("review", "submitted")
)

// Aggregate types.
const (
	AggregateTypeOrder  = "order"
	AggregateTypeReview = "review"
)

// Source identifies events published by this service.
const Source = "avashop-api"

// OrderPaymentTopic returns the topic for a payment status.
func OrderPaymentTopic(paymentStatus string) string {
	return pkgkafka.Topic("order", paymentStatus)
}

// OrderPaymentData is the payload of avashop.order.<status> events.
type OrderPaymentData struct {
	OrderID        string             `json:"order_id"`
	UserID         string             `json:"user_id,omitempty"`
	Email          string             `json:"email,omitempty"`
	PaymentStatus  string             `json:"payment_status"`
	PreviousStatus string             `json:"previous_payment_status,omitempty"`
	Status         string             `json:"status"`
	Amount         int64              `json:"amount"`
	Currency       string             `json:"currency"`
	Provider       string             `json:"provider"`
	TransactionID  string             `json:"transaction_id,omitempty"`
	Items          []domain.OrderItem `json:"items,omitempty"`
}

// OrderStatusChangedData is the payload of fulfilment moves.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// ReviewRequestedData is the payload of review.requested.
type ReviewRequestedData struct {
	OrderID   string `json:"order_id"`
	RequestID string `json:"request_id"`
	Email     string `json:"email"`
}

// ReviewSubmittedData is the payload of review.submitted.
type ReviewSubmittedData struct {
	ReviewID  string `json:"review_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Rating    int    `json:"rating"`
}

// publisher is the part of *pkgkafka.Producer the event producer needs.
type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront domain events.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// PublishOrderPayment publishes avashop.order.<payment status>.
func (p *Producer) PublishOrderPayment(ctx context.Context, o *domain.Order, previous string) error {
	return p.publish(ctx, OrderPaymentTopic(o.PaymentStatus), o.ID, AggregateTypeOrder, OrderPaymentData{
		OrderID:        o.ID,
		UserID:         o.UserID,
		Email:          o.Email,
		PaymentStatus:  o.PaymentStatus,
		PreviousStatus: previous,
		Status:         o.Status,
		Amount:         o.Amount,
		Currency:       o.Currency,
		Provider:       o.Provider,
		TransactionID:  o.TransactionID,
		Items:          o.Items,
	})
}

// PublishOrderStatusChanged publishes a fulfilment move.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus string) error {
	return p.publish(ctx, TopicOrderStatusChanged, orderID, AggregateTypeOrder, OrderStatusChangedData{
		OrderID:   orderID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})
}

// PublishReviewRequested publishes review.requested.
func (p *Producer) PublishReviewRequested(ctx context.Context, rr *domain.ReviewRequest) error {
	return p.publish(ctx, TopicReviewRequested, rr.OrderID, AggregateTypeOrder, ReviewRequestedData{
		OrderID:   rr.OrderID,
		RequestID: rr.ID,
		Email:     rr.Email,
	})
}

// PublishReviewSubmitted publishes review.submitted.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewSubmitted, r.ID, AggregateTypeReview, ReviewSubmittedData{
		ReviewID:  r.ID,
		OrderID:   r.OrderID,
		ProductID: r.ProductID,
		Rating:    r.Rating,
	})
}

// NopPublisher drops events. It stands in for Kafka when no brokers are
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }
