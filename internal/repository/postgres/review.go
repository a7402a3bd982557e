package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/pkg/database"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/pagination"
)

const reviewRequestColumns = `id, order_id, email, token_hash, expires_at, used, used_at, created_at`

// ReviewRequestRepository implements repository.ReviewRequestRepository
// using PostgreSQL.
type ReviewRequestRepository struct {
	db database.DBTX
}

// NewReviewRequestRepository creates a new PostgreSQL-backed review request repository.
func NewReviewRequestRepository(db database.DBTX) *ReviewRequestRepository {
	return &ReviewRequestRepository{db: db}
}

// Create inserts a review request.
func (r *ReviewRequestRepository) Create(ctx context.Context, rr *domain.ReviewRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO review_requests (`+reviewRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rr.ID, rr.OrderID, rr.Email, rr.TokenHash, rr.ExpiresAt, rr.Used, rr.UsedAt, rr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review request: %w", err)
	}
	return nil
}

// ExpireOutstanding moves the expiry of every unused request of orderID to now.
func (r *ReviewRequestRepository) ExpireOutstanding(ctx context.Context, orderID string, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE review_requests SET expires_at = $2
		WHERE order_id = $1 AND NOT used AND expires_at > $2`,
		orderID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire review requests: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const consumeTokenStmt = `
	UPDATE review_requests SET used = true, used_at = $3
	WHERE token_hash = $1 AND order_id = $2 AND NOT used AND expires_at > $3
	RETURNING ` + reviewRequestColumns

// Consume redeems a token in a single conditional write.
func (r *ReviewRequestRepository) Consume(ctx context.Context, tokenHash, orderID string, now time.Time) (rr *domain.ReviewRequest, err error) {
	ctx, end := database.TraceQuery(ctx, "ConsumeReviewToken", consumeTokenStmt)
	defer func() { end(err) }()

	var req domain.ReviewRequest
	err = r.db.QueryRow(ctx, consumeTokenStmt, tokenHash, orderID, now).Scan(
		&req.ID, &req.OrderID, &req.Email, &req.TokenHash,
		&req.ExpiresAt, &req.Used, &req.UsedAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("consume review token: %w", err)
	}
	return &req, nil
}

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts the review once per (order, product).
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO reviews (id, product_id, order_id, email, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, product_id) DO NOTHING`,
		rv.ID, rv.ProductID, rv.OrderID, rv.Email, rv.Rating, rv.Comment, rv.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert review: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByProduct returns the reviews of productID, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, page, perPage int) ([]domain.Review, int, error) {
	params := pagination.Params{Page: page, PerPage: perPage}.Normalize()

	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, order_id, email, rating, comment, created_at, count(*) OVER() AS total_count
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		productID, params.PerPage, params.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var total int
	reviews := make([]domain.Review, 0)
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.ProductID, &rv.OrderID, &rv.Email, &rv.Rating, &rv.Comment, &rv.CreatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, total, nil
}

// Summary returns the rating average and count of productID.
func (r *ReviewRepository) Summary(ctx context.Context, productID string) (*domain.ReviewSummary, error) {
	s := &domain.ReviewSummary{ProductID: productID}
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(rating), 0)::float8, COUNT(*)
		FROM reviews WHERE product_id = $1`,
		productID,
	).Scan(&s.AverageRating, &s.TotalCount)
	if err != nil {
		return nil, fmt.Errorf("review summary: %w", err)
	}
	return s, nil
}
