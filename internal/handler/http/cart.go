package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/service"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/httputil"
	"github.com/agamenonmacondo/avashop-sub001/pkg/middleware"
	"github.com/agamenonmacondo/avashop-sub001/pkg/validator"
)

// CartHandler serves the cart of the authenticated user.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for POST /cart.
type AddItemRequest struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId" validate:"required,max=100"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=100"`
}

// SetQuantityRequest is the JSON request body for PUT /cart/items/{productId}.
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=100"`
}

// cartResponse is the success envelope of every cart route.
type cartResponse struct {
	Success bool         `json:"success"`
	Cart    *domain.Cart `json:"cart"`
	Total   int64        `json:"total"`
}

func writeCart(w http.ResponseWriter, cart *domain.Cart) {
	httputil.WriteJSON(w, http.StatusOK, cartResponse{Success: true, Cart: cart, Total: cart.Total()})
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetCart(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}
	writeCart(w, cart)
}

// AddItem handles POST /api/v1/cart
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	userID := claims.UserID
	if req.UserID != "" && req.UserID != claims.UserID {
		if claims.Role != middleware.RoleAdmin {
			writeFailure(w, r, apperrors.Forbidden("cannot modify another user's cart"), h.logger)
			return
		}
		userID = req.UserID
	}

	cart, err := h.service.AddItem(r.Context(), userID, claims.Email, req.ProductID, req.Quantity)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}
	writeCart(w, cart)
}

// SetItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) SetItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req SetQuantityRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	cart, err := h.service.SetItemQuantity(r.Context(), claims.UserID, claims.Email, chi.URLParam(r, "productId"), *req.Quantity)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}
	writeCart(w, cart)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	cart, err := h.service.RemoveItem(r.Context(), claims.UserID, claims.Email, chi.URLParam(r, "productId"))
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}
	writeCart(w, cart)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	cart, err := h.service.Clear(r.Context(), claims.UserID, claims.Email)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}
	writeCart(w, cart)
}
