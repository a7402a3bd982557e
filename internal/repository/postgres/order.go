package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	"github.com/agamenonmacondo/avashop-sub001/pkg/database"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/pagination"
)

const orderColumns = `id, user_id, email, amount, currency, status, payment_status, provider, transaction_id, shipping_details, cart_snapshot, created_at, paid_at, updated_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	db database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(db database.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// orderRow holds the JSONB columns until they are decoded.
type orderRow struct {
	o            domain.Order
	shippingJSON []byte
	snapshotJSON []byte
}

func (row *orderRow) dest() []any {
	o := &row.o
	return []any{
		&o.ID, &o.UserID, &o.Email, &o.Amount, &o.Currency, &o.Status,
		&o.PaymentStatus, &o.Provider, &o.TransactionID,
		&row.shippingJSON, &row.snapshotJSON,
		&o.CreatedAt, &o.PaidAt, &o.UpdatedAt,
	}
}

func (row *orderRow) decode() (*domain.Order, error) {
	if len(row.shippingJSON) > 0 && string(row.shippingJSON) != "null" {
		var sd domain.ShippingDetails
		if err := json.Unmarshal(row.shippingJSON, &sd); err != nil {
			return nil, fmt.Errorf("unmarshal shipping details: %w", err)
		}
		row.o.ShippingDetails = &sd
	}
	if len(row.snapshotJSON) > 0 && string(row.snapshotJSON) != "null" {
		if err := json.Unmarshal(row.snapshotJSON, &row.o.CartSnapshot); err != nil {
			return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
		}
	}
	return &row.o, nil
}

func orderArgs(o *domain.Order) ([]any, error) {
	var shippingJSON []byte
	var err error
	// cart_snapshot is NOT NULL; a nil slice would bind as SQL NULL.
	snapshotJSON := []byte("[]")
	if o.ShippingDetails != nil {
		if shippingJSON, err = json.Marshal(o.ShippingDetails); err != nil {
			return nil, fmt.Errorf("marshal shipping details: %w", err)
		}
	}
	if len(o.CartSnapshot) > 0 {
		if snapshotJSON, err = json.Marshal(o.CartSnapshot); err != nil {
			return nil, fmt.Errorf("marshal cart snapshot: %w", err)
		}
	}
	return []any{
		o.ID, o.UserID, o.Email, o.Amount, o.Currency, o.Status,
		o.PaymentStatus, o.Provider, o.TransactionID,
		shippingJSON, snapshotJSON,
		o.CreatedAt, o.PaidAt, o.UpdatedAt,
	}, nil
}

// Create inserts a new order row.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("order", "id", o.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

const applyPaymentStmt = `
	WITH prev AS (SELECT payment_status FROM orders WHERE id = $1)
	INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
		payment_status = EXCLUDED.payment_status,
		status = CASE WHEN orders.status IN ('pending', 'error') THEN EXCLUDED.status ELSE orders.status END,
		transaction_id = COALESCE(NULLIF(EXCLUDED.transaction_id, ''), orders.transaction_id),
		email = COALESCE(NULLIF(orders.email, ''), EXCLUDED.email),
		paid_at = COALESCE(orders.paid_at, EXCLUDED.paid_at),
		updated_at = EXCLUDED.updated_at
	WHERE orders.payment_status = ANY($15)
	RETURNING ` + orderColumns + `, (xmax = 0) AS inserted, COALESCE((SELECT payment_status FROM prev), '') AS previous`

// ApplyPayment runs the payment transition as one conditional upsert. The
// conflicting row stays locked until the transaction ends, so concurrent
// callbacks for the same order serialise.
func (r *OrderRepository) ApplyPayment(ctx context.Context, u repository.PaymentUpdate) (res *repository.AppliedPayment, err error) {
	ctx, end := database.TraceQuery(ctx, "ApplyPayment", applyPaymentStmt)
	defer func() { end(err) }()

	args, err := orderArgs(u.Order)
	if err != nil {
		return nil, err
	}
	allowed := u.AllowedFrom
	if allowed == nil {
		allowed = []string{}
	}
	args = append(args, allowed)

	var (
		row      orderRow
		inserted bool
		previous string
	)
	err = r.db.QueryRow(ctx, applyPaymentStmt, args...).Scan(append(row.dest(), &inserted, &previous)...)
	if err == nil {
		o, decErr := row.decode()
		if decErr != nil {
			return nil, decErr
		}
		return &repository.AppliedPayment{Order: o, Applied: true, Inserted: inserted, Previous: previous}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("apply payment: %w", err)
	}

	current, err := r.get(ctx, u.Order.ID)
	if err != nil {
		return nil, err
	}
	return &repository.AppliedPayment{Order: current, Previous: current.PaymentStatus}, nil
}

func (r *OrderRepository) get(ctx context.Context, id string) (*domain.Order, error) {
	var row orderRow
	err := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id).Scan(row.dest()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return row.decode()
}

// InsertItems writes the order items once per product.
func (r *OrderRepository) InsertItems(ctx context.Context, items []domain.OrderItem) (int, error) {
	query := `
		INSERT INTO order_items (order_id, product_id, name, quantity, price, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id, product_id) DO NOTHING`

	var written int
	for _, it := range items {
		tag, err := r.db.Exec(ctx, query, it.OrderID, it.ProductID, it.Name, it.Quantity, it.Price, it.ImageURL)
		if err != nil {
			return written, fmt.Errorf("insert order item: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

// GetByID retrieves an order with its items in one query.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT
			o.id, o.user_id, o.email, o.amount, o.currency, o.status, o.payment_status,
			o.provider, o.transaction_id, o.shipping_details, o.cart_snapshot,
			o.created_at, o.paid_at, o.updated_at,
			COALESCE(
				JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'order_id', oi.order_id,
						'product_id', oi.product_id,
						'name', oi.name,
						'quantity', oi.quantity,
						'price', oi.price,
						'image_url', oi.image_url
					) ORDER BY oi.product_id
				) FILTER (WHERE oi.order_id IS NOT NULL),
				'[]'::jsonb
			) AS items
		FROM orders o
		LEFT JOIN order_items oi ON o.id = oi.order_id
		WHERE o.id = $1
		GROUP BY o.id`

	var (
		row       orderRow
		itemsJSON []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(append(row.dest(), &itemsJSON)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o, err := row.decode()
	if err != nil {
		return nil, err
	}
	o.Items = []domain.OrderItem{}
	if len(itemsJSON) > 0 && string(itemsJSON) != "[]" {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}
	return o, nil
}

// List returns orders matching filter, newest first, with the total count.
func (r *OrderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	add := func(column, value string) {
		if value == "" {
			return
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}
	add("status", filter.Status)
	add("payment_status", filter.PaymentStatus)
	add("email", filter.Email)

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argIndex, argIndex+1,
	)

	params := pagination.Params{Page: filter.Page, PerPage: filter.PerPage}.Normalize()
	args = append(args, params.PerPage, params.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var total int
	orders := make([]domain.Order, 0)
	for rows.Next() {
		var row orderRow
		if err := rows.Scan(append(row.dest(), &total)...); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		o, err := row.decode()
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus sets status when the stored status is one of from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from []string, target string) (*domain.Order, error) {
	query := `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + orderColumns

	var row orderRow
	err := r.db.QueryRow(ctx, query, id, target, from).Scan(row.dest()...)
	if err == nil {
		return row.decode()
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	current, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, apperrors.InvalidTransition(current.Status, target)
}
