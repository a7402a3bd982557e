package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/payment"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

// CheckoutConfig tunes stock holding.
type CheckoutConfig struct {
	ReservationTTL time.Duration
	SweepBatch     int
}

// CheckoutService turns a cart into a pending order, holds its stock and
// opens the hosted checkout of the chosen provider.
type CheckoutService struct {
	store       repository.Store
	providers   *payment.Registry
	publisher   EventPublisher
	invalidator CatalogInvalidator
	cfg         CheckoutConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewCheckoutService creates a new checkout service. invalidator may be nil
// when the catalog is not cached.
func NewCheckoutService(
	store repository.Store,
	providers *payment.Registry,
	publisher EventPublisher,
	invalidator CatalogInvalidator,
	cfg CheckoutConfig,
	logger *slog.Logger,
) *CheckoutService {
	if invalidator == nil {
		invalidator = nopInvalidator{}
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 30 * time.Minute
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &CheckoutService{
		store:       store,
		providers:   providers,
		publisher:   publisher,
		invalidator: invalidator,
		cfg:         cfg,
		logger:      logger,
		now:         utcNow,
	}
}

// Checkout validates the lines against the catalog, reserves stock, creates
// the pending order and returns the provider redirect. Stock problems are
// reported before the provider is contacted.
func (s *CheckoutService) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.PaymentRedirect, error) {
	provider, err := s.providers.Get(strings.ToLower(req.Provider))
	if err != nil {
		return nil, err
	}

	lines := req.Lines
	if len(lines) == 0 {
		cart, err := s.store.Carts().Get(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load cart: %w", err)
		}
		for _, it := range cart.Items {
			lines = append(lines, domain.CheckoutLine{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	}
	lines = mergeLines(lines)
	if len(lines) == 0 {
		return nil, apperrors.InvalidInput("cart is empty")
	}

	snapshot, currency, err := s.priceLines(ctx, lines)
	if err != nil {
		checkouts.WithLabelValues(provider.Name(), "out_of_stock").Inc()
		return nil, err
	}

	email := req.Email
	if email == "" && req.ShippingDetails != nil {
		email = req.ShippingDetails.Email
	}

	now := s.now()
	order := &domain.Order{
		ID:              domain.NewOrderID(provider.Name(), now),
		UserID:          req.UserID,
		Email:           email,
		Amount:          domain.CartTotal(snapshot),
		Currency:        currency,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Provider:        provider.Name(),
		ShippingDetails: req.ShippingDetails,
		CartSnapshot:    snapshot,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.placeOrder(ctx, order)
	if errors.Is(err, apperrors.ErrAlreadyExists) {
		// Two checkouts for one provider landed on the same millisecond.
		now = now.Add(time.Millisecond)
		order.ID = domain.NewOrderID(provider.Name(), now)
		order.CreatedAt, order.UpdatedAt = now, now
		err = s.placeOrder(ctx, order)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientStock) {
			checkouts.WithLabelValues(provider.Name(), "out_of_stock").Inc()
		}
		return nil, err
	}
	s.invalidate(ctx)

	redirect, err := provider.CreateCheckout(ctx, payment.CheckoutRequest{
		OrderID:     order.ID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Email:       order.Email,
		Description: describe(snapshot),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "payment provider checkout failed",
			slog.String("order_id", order.ID),
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		s.failOrder(ctx, order)
		checkouts.WithLabelValues(provider.Name(), "provider_error").Inc()
		if errors.Is(err, apperrors.ErrPaymentFailed) {
			return nil, err
		}
		return nil, apperrors.PaymentFailed("payment provider is unavailable")
	}

	checkouts.WithLabelValues(provider.Name(), "created").Inc()
	s.logger.InfoContext(ctx, "checkout created",
		slog.String("order_id", order.ID),
		slog.String("provider", provider.Name()),
		slog.Int64("amount", order.Amount),
		slog.String("currency", order.Currency),
	)

	if err := s.publisher.PublishOrderPayment(ctx, order, ""); err != nil {
		s.logger.WarnContext(ctx, "failed to publish order pending event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	return redirect, nil
}

// placeOrder holds stock for every snapshot line and inserts the pending
// order in one transaction.
func (s *CheckoutService) placeOrder(ctx context.Context, order *domain.Order) error {
	expiresAt := order.CreatedAt.Add(s.cfg.ReservationTTL)
	return s.store.InTx(ctx, func(tx repository.Store) error {
		for _, it := range order.CartSnapshot {
			ok, err := tx.Inventory().Reserve(ctx, order.ID, it.ProductID, it.Quantity, expiresAt)
			if err != nil {
				return fmt.Errorf("reserve %s: %w", it.ProductID, err)
			}
			if !ok {
				return s.stockError(ctx, tx, it.ProductID)
			}
		}
		return tx.Orders().Create(ctx, order)
	})
}

// priceLines loads every product and builds the server priced snapshot.
func (s *CheckoutService) priceLines(ctx context.Context, lines []domain.CheckoutLine) ([]domain.CartItem, string, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.store.Products().GetMany(ctx, ids)
	if err != nil {
		return nil, "", fmt.Errorf("load products: %w", err)
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	snapshot := make([]domain.CartItem, 0, len(lines))
	var currency string
	for _, l := range lines {
		if l.Quantity < 1 || l.Quantity > domain.MaxItemQuantity {
			return nil, "", apperrors.InvalidInput(fmt.Sprintf("quantity for %s must be between 1 and %d", l.ProductID, domain.MaxItemQuantity))
		}
		p, ok := byID[l.ProductID]
		if !ok || !p.Active {
			return nil, "", apperrors.InsufficientStock(domain.UnavailableProductMessage(l.ProductID))
		}
		if l.Quantity > p.Available() {
			return nil, "", apperrors.InsufficientStock(domain.OutOfStockMessage(p.Name, p.Available()))
		}
		if currency == "" {
			currency = p.Currency
		} else if p.Currency != currency {
			return nil, "", apperrors.InvalidInput("all products in one checkout must share a currency")
		}
		snapshot = append(snapshot, domain.CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  l.Quantity,
			ImageURL:  p.ImageURL,
		})
	}
	return snapshot, currency, nil
}

// stockError re-reads the product that lost the reservation race so the
// message carries what is actually left.
func (s *CheckoutService) stockError(ctx context.Context, tx repository.Store, productID string) error {
	p, err := tx.Products().GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InsufficientStock(domain.UnavailableProductMessage(productID))
		}
		return err
	}
	if !p.Active {
		return apperrors.InsufficientStock(domain.UnavailableProductMessage(productID))
	}
	return apperrors.InsufficientStock(domain.OutOfStockMessage(p.Name, p.Available()))
}

// failOrder moves a pending order whose checkout could not be opened to
// error and gives its stock back.
func (s *CheckoutService) failOrder(ctx context.Context, order *domain.Order) {
	failed := *order
	failed.Status = domain.OrderStatusError
	failed.PaymentStatus = domain.PaymentStatusError
	failed.UpdatedAt = s.now()

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Orders().ApplyPayment(ctx, repository.PaymentUpdate{
			Order:       &failed,
			AllowedFrom: []string{domain.PaymentStatusPending},
		}); err != nil {
			return err
		}
		_, err := tx.Inventory().Release(ctx, order.ID, domain.ReservationReleased)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to release stock of failed checkout",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.invalidate(ctx)
}

// ReleaseExpired releases the stock of orders whose reservations expired
// and returns how many orders were swept.
func (s *CheckoutService) ReleaseExpired(ctx context.Context) (int, error) {
	orderIDs, err := s.store.Inventory().ExpiredOrders(ctx, s.now(), s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}

	swept := 0
	for _, id := range orderIDs {
		var released int
		err := s.store.InTx(ctx, func(tx repository.Store) error {
			var err error
			released, err = tx.Inventory().Release(ctx, id, domain.ReservationExpired)
			return err
		})
		if err != nil {
			return swept, fmt.Errorf("release reservation of %s: %w", id, err)
		}
		if released > 0 {
			swept++
			reservationsReleased.Inc()
		}
	}
	if swept > 0 {
		s.invalidate(ctx)
		s.logger.InfoContext(ctx, "expired reservations released", slog.Int("orders", swept))
	}
	return swept, nil
}

// RunReservationSweeper calls ReleaseExpired every interval until ctx is
// done.
func (s *CheckoutService) RunReservationSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReleaseExpired(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("reservation sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *CheckoutService) invalidate(ctx context.Context) {
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "catalog cache invalidation failed", slog.String("error", err.Error()))
	}
}

// mergeLines sums quantities of repeated products, keeping first-seen order.
func mergeLines(lines []domain.CheckoutLine) []domain.CheckoutLine {
	out := make([]domain.CheckoutLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

func describe(items []domain.CartItem) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	d := []rune(strings.Join(names, ", "))
	if len(d) > 100 {
		return string(d[:97]) + "..."
	}
	return string(d)
}
