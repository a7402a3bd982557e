package domain

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Order status values. The payment outcomes seed status; shipped, delivered
// and canceled are set by fulfilment.
const (
	OrderStatusPending   = "pending"
	OrderStatusApproved  = "approved"
	OrderStatusDeclined  = "declined"
	OrderStatusError     = "error"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCanceled  = "canceled"
)

// Order is a checkout attempt and, once paid, a purchase. ID is generated
// by NewOrderID and handed to the payment processor as its reference.
type Order struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id,omitempty"`
	Email           string           `json:"email,omitempty"`
	Amount          int64            `json:"amount"`
	Currency        string           `json:"currency"`
	Status          string           `json:"status"`
	PaymentStatus   string           `json:"payment_status"`
	Provider        string           `json:"provider"`
	TransactionID   string           `json:"transaction_id,omitempty"`
	ShippingDetails *ShippingDetails `json:"shipping_details,omitempty"`
	CartSnapshot    []CartItem       `json:"cart_snapshot,omitempty"`
	Items           []OrderItem      `json:"items,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ShippingDetails is stored as a JSON document on the order.
type ShippingDetails struct {
	FullName   string `json:"fullName" validate:"required,max=200"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty" validate:"max=40"`
	Address    string `json:"address" validate:"required,max=300"`
	City       string `json:"city" validate:"required,max=100"`
	Department string `json:"department,omitempty" validate:"max=100"`
	PostalCode string `json:"postalCode,omitempty" validate:"max=20"`
	Country    string `json:"country,omitempty" validate:"max=60"`
	Notes      string `json:"notes,omitempty" validate:"max=500"`
}

// NewOrderID formats AVA-<PROVIDER>-<unix millis>.
func NewOrderID(provider string, now time.Time) string {
	return "AVA-" + strings.ToUpper(provider) + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

var orderStatuses = []string{
	OrderStatusPending, OrderStatusApproved, OrderStatusDeclined, OrderStatusError,
	OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled,
}

// IsValidOrderStatus reports whether s is a known status.
func IsValidOrderStatus(s string) bool {
	return slices.Contains(orderStatuses, s)
}

// fulfilmentTransitions are the status moves an operator may make.
var fulfilmentTransitions = map[string][]string{
	OrderStatusPending:  {OrderStatusCanceled},
	OrderStatusError:    {OrderStatusCanceled},
	OrderStatusApproved: {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped:  {OrderStatusDelivered},
}

// CanFulfil reports whether fulfilment may move the order to target.
func (o *Order) CanFulfil(target string) bool {
	return slices.Contains(fulfilmentTransitions[o.Status], target)
}

// HasProduct reports whether productID is among the persisted items.
func (o *Order) HasProduct(productID string) bool {
	return slices.ContainsFunc(o.Items, func(it OrderItem) bool { return it.ProductID == productID })
}

// OrderFilter narrows admin order listings.
type OrderFilter struct {
	Status        string
	PaymentStatus string
	Email         string
	Page          int
	PerPage       int
}
