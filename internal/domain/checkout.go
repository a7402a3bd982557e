package domain

import "fmt"

// Payment providers.
const (
	ProviderBold     = "bold"
	ProviderCoinbase = "coinbase"
)

// CheckoutLine is a requested product and quantity.
type CheckoutLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=100"`
}

// PaymentRedirect is what the storefront needs to hand the shopper to the
// hosted checkout.
type PaymentRedirect struct {
	Provider    string            `json:"provider"`
	OrderID     string            `json:"orderId"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	RedirectURL string            `json:"redirectUrl"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// CheckoutRequest is a shopper's attempt to pay.
type CheckoutRequest struct {
	UserID          string
	Email           string
	Provider        string
	Lines           []CheckoutLine
	ShippingDetails *ShippingDetails
}

// OutOfStockMessage is shown when quantity exceeds what is left.
func OutOfStockMessage(name string, available int) string {
	if available <= 0 {
		return fmt.Sprintf("Stock insuficiente para %s: producto agotado", name)
	}
	return fmt.Sprintf("Stock insuficiente para %s: solo quedan %d unidades", name, available)
}

// UnavailableProductMessage is shown when a product is gone from the catalog.
func UnavailableProductMessage(productID string) string {
	return fmt.Sprintf("El producto %s ya no está disponible", productID)
}
