package repository

import (
	"context"
	"time"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
)

// ProductRepository defines catalog persistence.
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Product, error)

	// GetMany loads the given products, skipping ids that do not exist.
	GetMany(ctx context.Context, ids []string) ([]domain.Product, error)

	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)

	// SetStock sets the absolute stock. It fails with ErrConflict when the
	// new value is below the reserved quantity.
	SetStock(ctx context.Context, id string, stock int) (*domain.Product, error)
}

// CartRepository stores the cart on the user's profile row.
type CartRepository interface {
	// Get returns the saved cart, or an empty cart at version 0.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// Save writes the cart only when the stored version equals
	// expectedVersion and bumps the version. A mismatch is ErrConflict.
	Save(ctx context.Context, cart *domain.Cart, email string, expectedVersion int) error
}

// InventoryRepository holds stock for pending orders.
type InventoryRepository interface {
	// Reserve holds qty units of productID for orderID. It returns false,
	// and writes nothing, when fewer than qty units are available.
	Reserve(ctx context.Context, orderID, productID string, qty int, expiresAt time.Time) (bool, error)

	// Confirm turns the active reservations of orderID into sold stock and
	// returns how many were confirmed.
	Confirm(ctx context.Context, orderID string) (int, error)

	// Release returns the held stock of orderID and marks its active
	// reservations with status (released or expired).
	Release(ctx context.Context, orderID, status string) (int, error)

	// DecrementStock takes qty units straight off stock, never below zero.
	DecrementStock(ctx context.Context, productID string, qty int) error

	// ExpiredOrders lists orders holding active reservations past their
	// expiry.
	ExpiredOrders(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// PaymentUpdate is the conditional upsert applied by a payment callback.
type PaymentUpdate struct {
	Order       *domain.Order
	AllowedFrom []string
}

// AppliedPayment is the stored order after a PaymentUpdate. Applied is false
// when the stored payment status was not in AllowedFrom; Order then holds
// the unchanged row. Previous is the payment status before the write, empty
// for new orders.
type AppliedPayment struct {
	Order    *domain.Order
	Applied  bool
	Inserted bool
	Previous string
}

// OrderRepository defines order persistence.
type OrderRepository interface {
	// Create inserts a new order row without items.
	Create(ctx context.Context, o *domain.Order) error

	// GetByID returns the order with its items.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// ApplyPayment inserts the order when absent, or moves its payment
	// status when the stored value is one of AllowedFrom, in one statement.
	ApplyPayment(ctx context.Context, u PaymentUpdate) (*AppliedPayment, error)

	// InsertItems writes items, skipping products the order already has.
	// It returns how many rows were new.
	InsertItems(ctx context.Context, items []domain.OrderItem) (int, error)

	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int, error)

	// UpdateStatus moves status from one of from to target. It fails with
	// ErrConflict when the stored status is not in from.
	UpdateStatus(ctx context.Context, id string, from []string, target string) (*domain.Order, error)
}

// WebhookEventRepository records processed payment callbacks.
type WebhookEventRepository interface {
	// Record stores the event unless its (provider, idempotency key) is
	// known, and reports whether it was stored.
	Record(ctx context.Context, e *domain.WebhookEvent) (bool, error)
	GetByKey(ctx context.Context, provider, key string) (*domain.WebhookEvent, error)
	SetOutcome(ctx context.Context, id string, outcome domain.TransitionOutcome) error
	List(ctx context.Context, orderID string, page, perPage int) ([]domain.WebhookEvent, int, error)
}

// ReviewRequestRepository stores review capabilities.
type ReviewRequestRepository interface {
	Create(ctx context.Context, r *domain.ReviewRequest) error

	// ExpireOutstanding expires the unused requests of orderID.
	ExpireOutstanding(ctx context.Context, orderID string, now time.Time) (int, error)

	// Consume marks an unused, unexpired request as used in one write.
	// It returns ErrNotFound when no such request exists.
	Consume(ctx context.Context, tokenHash, orderID string, now time.Time) (*domain.ReviewRequest, error)
}

// ReviewRepository stores product reviews.
type ReviewRepository interface {
	// Create stores the review and returns false when the order already
	// reviewed the product.
	Create(ctx context.Context, r *domain.Review) (bool, error)
	ListByProduct(ctx context.Context, productID string, page, perPage int) ([]domain.Review, int, error)
	Summary(ctx context.Context, productID string) (*domain.ReviewSummary, error)
}

// Store groups the repositories so multi-table writes share a transaction.
type Store interface {
	Products() ProductRepository
	Carts() CartRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	WebhookEvents() WebhookEventRepository
	ReviewRequests() ReviewRequestRepository
	Reviews() ReviewRepository

	// InTx runs fn against a Store bound to one transaction, committed
	// when fn returns nil.
	InTx(ctx context.Context, fn func(Store) error) error
}
