package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/pagination"
)

// OrderService implements order inspection and fulfilment for admins.
type OrderService struct {
	store       repository.Store
	publisher   EventPublisher
	invalidator CatalogInvalidator
	logger      *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(store repository.Store, publisher EventPublisher, invalidator CatalogInvalidator, logger *slog.Logger) *OrderService {
	if invalidator == nil {
		invalidator = nopInvalidator{}
	}
	return &OrderService{store: store, publisher: publisher, invalidator: invalidator, logger: logger}
}

// GetOrder returns an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.store.Orders().GetByID(ctx, id)
}

// ListOrders returns a filtered page of orders.
func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int, error) {
	if filter.Status != "" && !domain.IsValidOrderStatus(filter.Status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", filter.Status))
	}
	orders, total, err := s.store.Orders().List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// ListWebhookEvents returns recorded callbacks, optionally for one order.
func (s *OrderService) ListWebhookEvents(ctx context.Context, orderID string, params pagination.Params) ([]domain.WebhookEvent, int, error) {
	params = params.Normalize()
	events, total, err := s.store.WebhookEvents().List(ctx, orderID, params.Page, params.PerPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list webhook events: %w", err)
	}
	return events, total, nil
}

// UpdateStatus moves an order along fulfilment. payment_status is never
// changed here. Cancelling an order that still holds stock releases it.
func (s *OrderService) UpdateStatus(ctx context.Context, id, target string) (*domain.Order, error) {
	if !domain.IsValidOrderStatus(target) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", target))
	}

	order, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.CanFulfil(target) {
		return nil, apperrors.InvalidTransition(order.Status, target)
	}

	oldStatus := order.Status
	var released int
	var updated *domain.Order
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		updated, err = tx.Orders().UpdateStatus(ctx, id, []string{oldStatus}, target)
		if err != nil {
			return err
		}
		if target == domain.OrderStatusCanceled {
			released, err = tx.Inventory().Release(ctx, id, domain.ReservationReleased)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if released > 0 {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "catalog cache invalidation failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", id),
		slog.String("from", oldStatus),
		slog.String("to", target),
	)
	if err := s.publisher.PublishOrderStatusChanged(ctx, id, oldStatus, target); err != nil {
		s.logger.WarnContext(ctx, "failed to publish order status event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}
	return updated, nil
}
