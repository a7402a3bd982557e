package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/pkg/database"
)

// InventoryRepository implements repository.InventoryRepository using
// PostgreSQL. Held units live in products.reserved and are itemised in
// stock_reservations.
type InventoryRepository struct {
	db database.DBTX
}

// NewInventoryRepository creates a new PostgreSQL-backed inventory repository.
func NewInventoryRepository(db database.DBTX) *InventoryRepository {
	return &InventoryRepository{db: db}
}

const reserveStmt = `
	UPDATE products SET reserved = reserved + $2, updated_at = now()
	WHERE id = $1 AND active AND stock - reserved >= $2`

// Reserve holds stock with a single conditional update. Call it inside a
// transaction so a later failure undoes earlier lines.
func (r *InventoryRepository) Reserve(ctx context.Context, orderID, productID string, qty int, expiresAt time.Time) (ok bool, err error) {
	ctx, end := database.TraceQuery(ctx, "ReserveStock", reserveStmt)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, reserveStmt, productID, qty)
	if err != nil {
		return false, fmt.Errorf("reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO stock_reservations (id, order_id, product_id, quantity, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), orderID, productID, qty, domain.ReservationActive, expiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert reservation: %w", err)
	}
	return true, nil
}

// Confirm moves the held units of orderID out of stock and returns the number
// of products touched.
func (r *InventoryRepository) Confirm(ctx context.Context, orderID string) (int, error) {
	query := `
		WITH held AS (
			UPDATE stock_reservations SET status = $2, updated_at = now()
			WHERE order_id = $1 AND status = $3
			RETURNING product_id, quantity
		), totals AS (
			SELECT product_id, SUM(quantity) AS qty FROM held GROUP BY product_id
		)
		UPDATE products p
		SET stock = p.stock - t.qty, reserved = p.reserved - t.qty, updated_at = now()
		FROM totals t
		WHERE p.id = t.product_id`

	tag, err := r.db.Exec(ctx, query, orderID, domain.ReservationConfirmed, domain.ReservationActive)
	if err != nil {
		return 0, fmt.Errorf("confirm reservations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Release gives the held units of orderID back and returns the number of
// products touched.
func (r *InventoryRepository) Release(ctx context.Context, orderID, status string) (int, error) {
	query := `
		WITH held AS (
			UPDATE stock_reservations SET status = $2, updated_at = now()
			WHERE order_id = $1 AND status = $3
			RETURNING product_id, quantity
		), totals AS (
			SELECT product_id, SUM(quantity) AS qty FROM held GROUP BY product_id
		)
		UPDATE products p
		SET reserved = GREATEST(p.reserved - t.qty, 0), updated_at = now()
		FROM totals t
		WHERE p.id = t.product_id`

	tag, err := r.db.Exec(ctx, query, orderID, status, domain.ReservationActive)
	if err != nil {
		return 0, fmt.Errorf("release reservations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DecrementStock is used for approvals that arrive without a reservation.
func (r *InventoryRepository) DecrementStock(ctx context.Context, productID string, qty int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE products SET stock = GREATEST(stock - $2, 0), updated_at = now() WHERE id = $1`,
		productID, qty,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return nil
}

// ExpiredOrders lists orders with active reservations that expired at or
// before now.
func (r *InventoryRepository) ExpiredOrders(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT order_id FROM stock_reservations
		WHERE status = $1 AND expires_at <= $2
		ORDER BY order_id
		LIMIT $3`,
		domain.ReservationActive, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired reservation: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired reservations: %w", err)
	}
	return ids, nil
}
