package domain

import "time"

// MaxItemQuantity caps one cart line.
const MaxItemQuantity = 100

// CartItem is one cart line. Name, Price and ImageURL are copied from the
// catalog when the line is written, never taken from the client.
type CartItem struct {
	ProductID string `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"image,omitempty"`
}

// LineTotal is Price times Quantity.
func (i CartItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Cart is the per user cart stored on the profile row. Version increases on
// every write and guards concurrent updates.
type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	Version   int        `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Total sums every line.
func (c *Cart) Total() int64 {
	return CartTotal(c.Items)
}

// CartTotal sums the lines of items.
func CartTotal(items []CartItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal()
	}
	return total
}

// FindItem returns the index of productID in the cart, or -1.
func (c *Cart) FindItem(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// SetItem replaces or appends a line. A quantity of zero or less removes it.
func (c *Cart) SetItem(item CartItem) {
	idx := c.FindItem(item.ProductID)
	switch {
	case item.Quantity <= 0 && idx >= 0:
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	case item.Quantity <= 0:
	case idx >= 0:
		c.Items[idx] = item
	default:
		c.Items = append(c.Items, item)
	}
}

// RemoveItem drops productID and reports whether it was present.
func (c *Cart) RemoveItem(productID string) bool {
	idx := c.FindItem(productID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}
