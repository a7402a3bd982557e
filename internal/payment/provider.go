// Package payment talks to the hosted payment processors over their public
// HTTP contracts.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

// ErrInvalidSignature is returned when a webhook signature is missing or
// does not match.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutRequest is what a provider needs to open a hosted checkout.
type CheckoutRequest struct {
	OrderID     string
	Amount      int64
	Currency    string
	Email       string
	Description string
}

// Provider is one payment processor.
type Provider interface {
	Name() string

	// CreateCheckout prepares the hosted checkout for an order.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*domain.PaymentRedirect, error)

	// VerifyWebhook checks the callback signature. It reports false with a
	// nil error when no secret is configured.
	VerifyWebhook(header http.Header, body []byte) (bool, error)

	// ParseWebhook maps the provider payload onto a PaymentCallback.
	ParseWebhook(body []byte) (*domain.PaymentCallback, error)
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry indexes providers by Name.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider called name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported payment provider %q", name))
	}
	return p, nil
}

// Names lists the registered providers in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
