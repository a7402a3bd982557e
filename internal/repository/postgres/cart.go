package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/pkg/database"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

// CartRepository implements repository.CartRepository on the profiles table.
type CartRepository struct {
	db database.DBTX
}

// NewCartRepository creates a new PostgreSQL-backed cart repository.
func NewCartRepository(db database.DBTX) *CartRepository {
	return &CartRepository{db: db}
}

// Get returns the cart stored on the profile of userID.
func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	query := `SELECT cart, cart_version, updated_at FROM profiles WHERE id = $1`

	cart := &domain.Cart{UserID: userID, Items: []domain.CartItem{}}
	var raw []byte
	err := r.db.QueryRow(ctx, query, userID).Scan(&raw, &cart.Version, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &cart.Items); err != nil {
			return nil, fmt.Errorf("unmarshal cart: %w", err)
		}
	}
	return cart, nil
}

// Save writes cart when the stored version is expectedVersion. On success
// cart.Version holds the new version.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart, email string, expectedVersion int) error {
	items := cart.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	query := `
		INSERT INTO profiles (id, email, cart, cart_version, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (id) DO UPDATE SET
			cart = EXCLUDED.cart,
			cart_version = profiles.cart_version + 1,
			email = COALESCE(NULLIF(EXCLUDED.email, ''), profiles.email),
			updated_at = EXCLUDED.updated_at
		WHERE profiles.cart_version = $5
		RETURNING cart_version`

	var version int
	err = r.db.QueryRow(ctx, query, cart.UserID, email, raw, cart.UpdatedAt, expectedVersion).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.Conflict("cart was modified concurrently")
		}
		return fmt.Errorf("save cart: %w", err)
	}
	cart.Version = version
	return nil
}
