package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	"github.com/agamenonmacondo/avashop-sub001/pkg/database"
)

// Store implements repository.Store over a pool or a transaction.
type Store struct {
	db database.DBTX
}

// NewStore binds the repositories to db.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Products() repository.ProductRepository { return NewProductRepository(s.db) }
func (s *Store) Carts() repository.CartRepository       { return NewCartRepository(s.db) }
func (s *Store) Inventory() repository.InventoryRepository {
	return NewInventoryRepository(s.db)
}
func (s *Store) Orders() repository.OrderRepository { return NewOrderRepository(s.db) }
func (s *Store) WebhookEvents() repository.WebhookEventRepository {
	return NewWebhookEventRepository(s.db)
}
func (s *Store) ReviewRequests() repository.ReviewRequestRepository {
	return NewReviewRequestRepository(s.db)
}
func (s *Store) Reviews() repository.ReviewRepository { return NewReviewRepository(s.db) }

// InTx runs fn in a transaction. Inside an existing transaction it nests
// through a savepoint.
func (s *Store) InTx(ctx context.Context, fn func(repository.Store) error) error {
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewStore(tx))
	})
}
