package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/service"
	"github.com/agamenonmacondo/avashop-sub001/pkg/httputil"
	"github.com/agamenonmacondo/avashop-sub001/pkg/pagination"
	"github.com/agamenonmacondo/avashop-sub001/pkg/validator"
)

// AdminHandler serves order administration.
type AdminHandler struct {
	orders  *service.OrderService
	reviews *service.ReviewService
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(orders *service.OrderService, reviews *service.ReviewService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{orders: orders, reviews: reviews, logger: logger}
}

// UpdateStatusRequest is the JSON request body for a fulfilment move.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=shipped delivered canceled"`
}

// ListOrders handles GET /api/v1/admin/orders
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	q := r.URL.Query()
	filter := domain.OrderFilter{
		Status:        q.Get("status"),
		PaymentStatus: q.Get("payment_status"),
		Email:         q.Get("email"),
		Page:          params.Page,
		PerPage:       params.PerPage,
	}

	orders, total, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(orders, total, params.Page, params.PerPage))
}

// GetOrder handles GET /api/v1/admin/orders/{id}
func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// UpdateOrderStatus handles PATCH /api/v1/admin/orders/{id}/status
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	logAdmin(r, h.logger, "order status changed",
		slog.String("order_id", order.ID),
		slog.String("status", order.Status),
	)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// IssueReviewRequest handles POST /api/v1/admin/orders/{id}/review-requests
func (h *AdminHandler) IssueReviewRequest(w http.ResponseWriter, r *http.Request) {
	rr, err := h.reviews.IssueReviewRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	logAdmin(r, h.logger, "review request reissued", slog.String("order_id", rr.OrderID))
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: rr})
}

// ListWebhookEvents handles GET /api/v1/admin/webhook-events
func (h *AdminHandler) ListWebhookEvents(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	events, total, err := h.orders.ListWebhookEvents(r.Context(), r.URL.Query().Get("order_id"), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(events, total, params.Page, params.PerPage))
}
