package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
)

// EventPublisher publishes domain events. *event.Producer satisfies it.
// Publish errors are logged by the services and never fail a request.
type EventPublisher interface {
	PublishOrderPayment(ctx context.Context, o *domain.Order, previous string) error
	PublishOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus string) error
	PublishReviewRequested(ctx context.Context, rr *domain.ReviewRequest) error
	PublishReviewSubmitted(ctx context.Context, r *domain.Review) error
}

// CatalogInvalidator drops cached catalog reads after stock moves.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context) error
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context) error { return nil }

func utcNow() time.Time { return time.Now().UTC() }

var (
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Payment callbacks by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	webhookRefunds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_refunds_required_total",
			Help: "Approved payments for orders canceled before settlement",
		},
		[]string{"provider"},
	)

	checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_attempts_total",
			Help: "Checkout attempts by provider and result",
		},
		[]string{"provider", "result"},
	)

	reservationsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_reservations_expired_total",
			Help: "Orders whose stock reservation expired",
		},
	)

	reviewsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_submitted_total",
			Help: "Review submissions by result",
		},
		[]string{"result"},
	)
)
