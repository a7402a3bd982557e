package domain

import "time"

// Product is a catalog entry. Prices are in the smallest unit of Currency.
type Product struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Currency    string    `json:"currency"`
	Stock       int       `json:"stock"`
	Reserved    int       `json:"reserved"`
	ImageURL    string    `json:"image_url,omitempty"`
	Category    string    `json:"category,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Available is the stock not held by pending checkouts.
func (p *Product) Available() int {
	if n := p.Stock - p.Reserved; n > 0 {
		return n
	}
	return 0
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Category        string
	IncludeInactive bool
	Page            int
	PerPage         int
}
