package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/payment"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

// IdempotencyHeader lets a processor name the delivery it is retrying.
const IdempotencyHeader = "Idempotency-Key"

// WebhookService applies payment callbacks to orders through the payment
// transition table. Each delivery is recorded under its idempotency key in
// the same transaction as the order write.
type WebhookService struct {
	store            repository.Store
	providers        *payment.Registry
	publisher        EventPublisher
	invalidator      CatalogInvalidator
	requireSignature bool
	logger           *slog.Logger
	now              func() time.Time
}

// NewWebhookService creates a new webhook service. With requireSignature
// unset, callbacks for providers without a configured secret are accepted
// unsigned.
func NewWebhookService(
	store repository.Store,
	providers *payment.Registry,
	publisher EventPublisher,
	invalidator CatalogInvalidator,
	requireSignature bool,
	logger *slog.Logger,
) *WebhookService {
	if invalidator == nil {
		invalidator = nopInvalidator{}
	}
	return &WebhookService{
		store:            store,
		providers:        providers,
		publisher:        publisher,
		invalidator:      invalidator,
		requireSignature: requireSignature,
		logger:           logger,
		now:              utcNow,
	}
}

// Handle verifies, decodes and applies one callback delivery.
func (s *WebhookService) Handle(ctx context.Context, providerName string, header http.Header, body []byte) (*domain.TransitionResult, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	signed, err := provider.VerifyWebhook(header, body)
	if err != nil {
		webhookEvents.WithLabelValues(provider.Name(), "bad_signature").Inc()
		s.logger.WarnContext(ctx, "webhook signature rejected",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Unauthorized("invalid webhook signature")
	}
	if !signed && s.requireSignature {
		webhookEvents.WithLabelValues(provider.Name(), "bad_signature").Inc()
		return nil, apperrors.Unauthorized("webhook signature is required")
	}

	cb, err := provider.ParseWebhook(body)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("malformed webhook payload: %v", err))
	}
	if cb.OrderID == "" || cb.Status == "" {
		return nil, apperrors.InvalidInput("orderId and status are required")
	}
	target, ok := domain.PaymentStatusFromCallback(cb.Status)
	if !ok {
		return &domain.TransitionResult{OrderID: cb.OrderID},
			apperrors.InvalidInput(fmt.Sprintf("unknown payment status %q", cb.Status))
	}
	cb.Provider = provider.Name()
	cb.ReceivedAt = s.now()

	evt := &domain.WebhookEvent{
		ID:             uuid.New().String(),
		Provider:       cb.Provider,
		IdempotencyKey: idempotencyKey(header, cb),
		OrderID:        cb.OrderID,
		Status:         target,
		Outcome:        domain.OutcomeApplied,
		SignatureValid: signed,
		Payload:        jsonPayload(body),
		ReceivedAt:     cb.ReceivedAt,
	}

	var res *domain.TransitionResult
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		res, err = s.apply(ctx, tx, evt, cb, target)
		return err
	})
	if err != nil {
		webhookEvents.WithLabelValues(provider.Name(), "error").Inc()
		return nil, err
	}

	webhookEvents.WithLabelValues(provider.Name(), string(res.Outcome)).Inc()
	logAttrs := []any{
		slog.String("order_id", res.OrderID),
		slog.String("provider", provider.Name()),
		slog.String("outcome", string(res.Outcome)),
		slog.String("previous", res.Previous),
		slog.String("payment_status", res.Current),
	}
	if res.Outcome == domain.OutcomeRejected {
		s.logger.WarnContext(ctx, "payment transition rejected", logAttrs...)
	} else {
		s.logger.InfoContext(ctx, "payment callback processed", logAttrs...)
	}

	if res.Outcome == domain.OutcomeApplied {
		s.invalidate(ctx)
		if err := s.publisher.PublishOrderPayment(ctx, res.Order, res.Previous); err != nil {
			s.logger.WarnContext(ctx, "failed to publish order payment event",
				slog.String("order_id", res.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// apply runs inside the webhook transaction.
func (s *WebhookService) apply(
	ctx context.Context,
	tx repository.Store,
	evt *domain.WebhookEvent,
	cb *domain.PaymentCallback,
	target string,
) (*domain.TransitionResult, error) {
	fresh, err := tx.WebhookEvents().Record(ctx, evt)
	if err != nil {
		return nil, err
	}
	if !fresh {
		prior, err := tx.WebhookEvents().GetByKey(ctx, evt.Provider, evt.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("load recorded webhook event: %w", err)
		}
		return &domain.TransitionResult{
			OrderID:  cb.OrderID,
			Outcome:  domain.OutcomeDuplicate,
			Recorded: prior.Outcome,
			Current:  prior.Status,
		}, nil
	}

	applied, err := tx.Orders().ApplyPayment(ctx, repository.PaymentUpdate{
		Order:       candidateOrder(cb, target),
		AllowedFrom: domain.PaymentPredecessors(target),
	})
	if err != nil {
		return nil, err
	}

	res := &domain.TransitionResult{
		OrderID:  cb.OrderID,
		Previous: applied.Previous,
		Current:  applied.Order.PaymentStatus,
		Order:    applied.Order,
	}
	if !applied.Applied {
		res.Outcome = domain.ClassifyPayment(applied.Previous, target)
		if res.Outcome == domain.OutcomeApplied {
			// The row moved between the read and the guarded write.
			res.Outcome = domain.OutcomeRejected
		}
		if err := tx.WebhookEvents().SetOutcome(ctx, evt.ID, res.Outcome); err != nil {
			return nil, err
		}
		return res, nil
	}
	res.Outcome = domain.OutcomeApplied

	if applied.Order.Amount != cb.Amount && cb.Amount != 0 {
		s.logger.WarnContext(ctx, "callback amount differs from order amount",
			slog.String("order_id", cb.OrderID),
			slog.Int64("order_amount", applied.Order.Amount),
			slog.Int64("callback_amount", cb.Amount),
		)
	}

	switch target {
	case domain.PaymentStatusApproved:
		if applied.Order.Status == domain.OrderStatusCanceled {
			// Stock was already returned by the cancel; the charge needs a refund.
			webhookRefunds.WithLabelValues(cb.Provider).Inc()
			s.logger.WarnContext(ctx, "payment approved for canceled order, refund required",
				slog.String("order_id", cb.OrderID),
				slog.String("provider", cb.Provider),
				slog.String("transaction_id", cb.TransactionID),
			)
			break
		}
		if err := s.fulfilStock(ctx, tx, applied.Order, cb); err != nil {
			return nil, err
		}
	case domain.PaymentStatusDeclined, domain.PaymentStatusError:
		if _, err := tx.Inventory().Release(ctx, cb.OrderID, domain.ReservationReleased); err != nil {
			return nil, fmt.Errorf("release reservation: %w", err)
		}
	}

	order, err := tx.Orders().GetByID(ctx, cb.OrderID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	res.Order = order
	res.Current = order.PaymentStatus

	if err := tx.WebhookEvents().SetOutcome(ctx, evt.ID, res.Outcome); err != nil {
		return nil, err
	}
	return res, nil
}

// fulfilStock writes the order items and turns held stock into sold stock.
// Orders that never held stock, such as ones first seen through a callback,
// have it taken directly.
func (s *WebhookService) fulfilStock(ctx context.Context, tx repository.Store, order *domain.Order, cb *domain.PaymentCallback) error {
	lines := order.CartSnapshot
	if len(lines) == 0 {
		lines = cb.CartItems
	}
	items := domain.ItemsFromCart(order.ID, lines)
	if len(items) == 0 {
		s.logger.WarnContext(ctx, "approved order has no items", slog.String("order_id", order.ID))
		return nil
	}
	if _, err := tx.Orders().InsertItems(ctx, items); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	confirmed, err := tx.Inventory().Confirm(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	if confirmed > 0 {
		return nil
	}
	for _, it := range items {
		if err := tx.Inventory().DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("decrement stock of %s: %w", it.ProductID, err)
		}
	}
	return nil
}

func (s *WebhookService) invalidate(ctx context.Context) {
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "catalog cache invalidation failed", slog.String("error", err.Error()))
	}
}

// candidateOrder is the row a callback inserts when the order is unknown.
// CartSnapshot holds the callback lines, priced by the processor.
func candidateOrder(cb *domain.PaymentCallback, target string) *domain.Order {
	o := &domain.Order{
		ID:              cb.OrderID,
		Email:           cb.Email,
		Amount:          cb.Amount,
		Currency:        strings.ToUpper(cb.Currency),
		Status:          target,
		PaymentStatus:   target,
		Provider:        cb.Provider,
		TransactionID:   cb.TransactionID,
		ShippingDetails: cb.ShippingDetails,
		CartSnapshot:    cb.CartItems,
		CreatedAt:       cb.ReceivedAt,
		UpdatedAt:       cb.ReceivedAt,
	}
	if o.Email == "" && cb.ShippingDetails != nil {
		o.Email = cb.ShippingDetails.Email
	}
	if target == domain.PaymentStatusApproved {
		paidAt := cb.ReceivedAt
		o.PaidAt = &paidAt
	}
	return o
}

// idempotencyKey prefers the header, then the provider event id, and
// otherwise derives a key from the callback content.
func idempotencyKey(header http.Header, cb *domain.PaymentCallback) string {
	if k := strings.TrimSpace(header.Get(IdempotencyHeader)); k != "" {
		return k
	}
	if cb.EventID != "" {
		return cb.EventID
	}
	return hashToken(cb.OrderID + "|" + strings.ToUpper(cb.Status) + "|" + cb.TransactionID)
}

func jsonPayload(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return nil
}
