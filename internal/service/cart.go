package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

// cartWriteAttempts bounds the compare-and-set retries of one cart write.
const cartWriteAttempts = 3

// CartService implements the per user cart stored on the profile.
type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	logger   *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(carts repository.CartRepository, products repository.ProductRepository, logger *slog.Logger) *CartService {
	return &CartService{carts: carts, products: products, logger: logger}
}

// GetCart returns the cart of userID, empty when none was saved.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// AddItem adds quantity units of productID to the cart.
func (s *CartService) AddItem(ctx context.Context, userID, email, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, apperrors.InvalidInput("quantity must be at least 1")
	}
	return s.setLine(ctx, userID, email, productID, func(current int) int { return current + quantity })
}

// SetItemQuantity sets the quantity of productID. Zero removes the line.
func (s *CartService) SetItemQuantity(ctx context.Context, userID, email, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must not be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, email, productID)
	}
	return s.setLine(ctx, userID, email, productID, func(int) int { return quantity })
}

// RemoveItem drops productID from the cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, email, productID string) (*domain.Cart, error) {
	return s.mutate(ctx, userID, email, func(c *domain.Cart) error {
		if !c.RemoveItem(productID) {
			return apperrors.NotFound("cart item", productID)
		}
		return nil
	})
}

// Clear empties the cart.
func (s *CartService) Clear(ctx context.Context, userID, email string) (*domain.Cart, error) {
	return s.mutate(ctx, userID, email, func(c *domain.Cart) error {
		c.Items = []domain.CartItem{}
		return nil
	})
}

// setLine prices the line from the catalog and checks availability.
func (s *CartService) setLine(ctx context.Context, userID, email, productID string, qty func(current int) int) (*domain.Cart, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, err
	}
	if !p.Active {
		return nil, apperrors.InsufficientStock(domain.UnavailableProductMessage(p.ID))
	}

	return s.mutate(ctx, userID, email, func(c *domain.Cart) error {
		current := 0
		if i := c.FindItem(productID); i >= 0 {
			current = c.Items[i].Quantity
		}
		n := qty(current)
		if n > domain.MaxItemQuantity {
			return apperrors.InvalidInput(fmt.Sprintf("at most %d units per product", domain.MaxItemQuantity))
		}
		if n > p.Available() {
			return apperrors.InsufficientStock(domain.OutOfStockMessage(p.Name, p.Available()))
		}
		c.SetItem(domain.CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  n,
			ImageURL:  p.ImageURL,
		})
		return nil
	})
}

// mutate applies fn to the latest cart and saves it with a version check,
// retrying when another writer got there first.
func (s *CartService) mutate(ctx context.Context, userID, email string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	for attempt := 1; ; attempt++ {
		cart, err := s.carts.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get cart: %w", err)
		}
		if err := fn(cart); err != nil {
			return nil, err
		}

		expected := cart.Version
		cart.UpdatedAt = utcNow()
		err = s.carts.Save(ctx, cart, email, expected)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) || attempt >= cartWriteAttempts {
			return nil, err
		}
		s.logger.DebugContext(ctx, "cart write conflict, retrying",
			slog.String("user_id", userID),
			slog.Int("attempt", attempt),
		)
	}
}
