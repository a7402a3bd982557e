package domain

import (
	"slices"
	"strings"
	"time"
)

// Status values carried by payment callbacks.
const (
	CallbackApproved = "APPROVED"
	CallbackDeclined = "DECLINED"
	CallbackPending  = "PENDING"
	CallbackError    = "ERROR"
)

// Payment status values, owned by the webhook state machine.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusDeclined = "declined"
	PaymentStatusError    = "error"
)

// PaymentStatusFromCallback maps a callback status (any case) to a payment
// status.
func PaymentStatusFromCallback(status string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case CallbackApproved:
		return PaymentStatusApproved, true
	case CallbackDeclined:
		return PaymentStatusDeclined, true
	case CallbackPending:
		return PaymentStatusPending, true
	case CallbackError:
		return PaymentStatusError, true
	}
	return "", false
}

// paymentPredecessors lists, per target status, the payment statuses an
// existing order may hold for the move to be accepted. approved and
// declined are terminal.
var paymentPredecessors = map[string][]string{
	PaymentStatusPending:  {PaymentStatusError},
	PaymentStatusApproved: {PaymentStatusPending, PaymentStatusError},
	PaymentStatusDeclined: {PaymentStatusPending, PaymentStatusError},
	PaymentStatusError:    {PaymentStatusPending},
}

// PaymentPredecessors returns the payment statuses from which target can be
// reached.
func PaymentPredecessors(target string) []string {
	return slices.Clone(paymentPredecessors[target])
}

// TransitionOutcome classifies a callback against the current order.
type TransitionOutcome string

const (
	OutcomeApplied   TransitionOutcome = "applied"
	OutcomeNoop      TransitionOutcome = "noop"
	OutcomeRejected  TransitionOutcome = "rejected"
	OutcomeDuplicate TransitionOutcome = "duplicate"
)

// ClassifyPayment decides what a callback moving an order from current to
// target does. An empty current means the order does not exist yet.
func ClassifyPayment(current, target string) TransitionOutcome {
	switch {
	case current == "":
		return OutcomeApplied
	case current == target:
		return OutcomeNoop
	case slices.Contains(paymentPredecessors[target], current):
		return OutcomeApplied
	}
	return OutcomeRejected
}

// IsTerminalPayment reports whether no further payment move is allowed.
func IsTerminalPayment(status string) bool {
	return status == PaymentStatusApproved || status == PaymentStatusDeclined
}

// PaymentCallback is a provider neutral payment status notification.
type PaymentCallback struct {
	Provider        string           `json:"provider"`
	OrderID         string           `json:"orderId"`
	Status          string           `json:"status"`
	Amount          int64            `json:"amount"`
	Currency        string           `json:"currency"`
	TransactionID   string           `json:"transactionId,omitempty"`
	EventID         string           `json:"eventId,omitempty"`
	Email           string           `json:"email,omitempty"`
	CartItems       []CartItem       `json:"cartItems,omitempty"`
	ShippingDetails *ShippingDetails `json:"shippingDetails,omitempty"`
	ReceivedAt      time.Time        `json:"-"`
}

// TransitionResult is what applying one callback did. Recorded is set for
// duplicates and holds the outcome of the first delivery.
type TransitionResult struct {
	OrderID  string            `json:"orderId"`
	Outcome  TransitionOutcome `json:"outcome"`
	Recorded TransitionOutcome `json:"recorded,omitempty"`
	Previous string            `json:"previous_payment_status,omitempty"`
	Current  string            `json:"payment_status,omitempty"`
	Order    *Order            `json:"-"`
}

// Accepted reports whether the callback left the order in the requested
// state.
func (r *TransitionResult) Accepted() bool {
	if r.Outcome == OutcomeDuplicate {
		return r.Recorded != OutcomeRejected
	}
	return r.Outcome != OutcomeRejected
}
