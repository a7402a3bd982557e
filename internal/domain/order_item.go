package domain

// OrderItem is one purchased line, written when payment is approved.
type OrderItem struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"image_url,omitempty"`
}

// Subtotal is Price times Quantity.
func (i OrderItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// ItemsFromCart converts cart lines into order items for orderID. Lines with
// the same product are merged so each product appears once.
func ItemsFromCart(orderID string, lines []CartItem) []OrderItem {
	items := make([]OrderItem, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity <= 0 {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			items[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(items)
		items = append(items, OrderItem{
			OrderID:   orderID,
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     l.Price,
			ImageURL:  l.ImageURL,
		})
	}
	return items
}
