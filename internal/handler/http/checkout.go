package http

import (
	"log/slog"
	"net/http"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/service"
	"github.com/agamenonmacondo/avashop-sub001/pkg/httputil"
	"github.com/agamenonmacondo/avashop-sub001/pkg/middleware"
	"github.com/agamenonmacondo/avashop-sub001/pkg/validator"
)

// CheckoutHandler opens hosted checkouts.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: svc, logger: logger}
}

// CheckoutRequest is the JSON request body for POST /checkout. Items
// default to the saved cart.
type CheckoutRequest struct {
	Provider        string                  `json:"provider" validate:"required,oneof=bold coinbase"`
	Items           []domain.CheckoutLine   `json:"items" validate:"omitempty,max=50,dive"`
	Email           string                  `json:"email" validate:"omitempty,email"`
	ShippingDetails *domain.ShippingDetails `json:"shippingDetails" validate:"required"`
}

type checkoutResponse struct {
	Success bool `json:"success"`
	*domain.PaymentRedirect
}

// Checkout handles POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	email := req.Email
	if email == "" {
		email = claims.Email
	}

	redirect, err := h.service.Checkout(r.Context(), domain.CheckoutRequest{
		UserID:          claims.UserID,
		Email:           email,
		Provider:        req.Provider,
		Lines:           req.Items,
		ShippingDetails: req.ShippingDetails,
	})
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, checkoutResponse{Success: true, PaymentRedirect: redirect})
}
