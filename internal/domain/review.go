package domain

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Review is one customer rating of a purchased product.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OrderID   string    `json:"order_id"`
	Email     string    `json:"email,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewSummary aggregates the reviews of one product.
type ReviewSummary struct {
	ProductID     string  `json:"product_id"`
	AverageRating float64 `json:"average_rating"`
	TotalCount    int     `json:"total_count"`
}

// ReviewRequest is a single use capability to review the products of one
// order. Only the sha256 of the token is stored.
type ReviewRequest struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"order_id"`
	Email     string     `json:"email"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Usable reports whether the request can still be redeemed at now.
func (r *ReviewRequest) Usable(now time.Time) bool {
	return !r.Used && now.Before(r.ExpiresAt)
}
