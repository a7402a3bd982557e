package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/service"
	"github.com/agamenonmacondo/avashop-sub001/pkg/httputil"
	"github.com/agamenonmacondo/avashop-sub001/pkg/middleware"
	"github.com/agamenonmacondo/avashop-sub001/pkg/pagination"
)

// CatalogHandler serves product listings, product detail and reviews, and
// the admin product routes.
type CatalogHandler struct {
	catalog *service.CatalogService
	reviews *service.ReviewService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(catalog *service.CatalogService, reviews *service.ReviewService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, reviews: reviews, logger: logger}
}

// --- Request DTOs ---

// SetStockRequest is the JSON request body for an absolute stock change.
type SetStockRequest struct {
	Stock *int `json:"stock"`
}

// --- Handlers ---

// ListProducts handles GET /api/v1/products
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := domain.ProductFilter{
		Category: r.URL.Query().Get("category"),
		Page:     params.Page,
		PerPage:  params.PerPage,
	}

	products, total, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(products, total, params.Page, params.PerPage))
}

// GetProduct handles GET /api/v1/products/{idOrSlug}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "idOrSlug"), false)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// ListReviews handles GET /api/v1/products/{idOrSlug}/reviews
func (h *CatalogHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "idOrSlug"), false)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	params := pagination.FromRequest(r)
	page, err := h.reviews.ListForProduct(r.Context(), product.ID, params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: page})
}

// --- Admin Handlers ---

// AdminListProducts handles GET /api/v1/admin/products, including inactive
// products.
func (h *CatalogHandler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := domain.ProductFilter{
		Category:        r.URL.Query().Get("category"),
		IncludeInactive: true,
		Page:            params.Page,
		PerPage:         params.PerPage,
	}

	products, total, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(products, total, params.Page, params.PerPage))
}

// CreateProduct handles POST /api/v1/admin/products
func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in service.ProductInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), in)
	if err != nil {
		writeAdminError(w, r, err, h.logger)
		return
	}

	logAdmin(r, h.logger, "product created", slog.String("product_id", product.ID))
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: product})
}

// UpdateProduct handles PUT /api/v1/admin/products/{id}
func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var in service.ProductInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id.String(), in)
	if err != nil {
		writeAdminError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// SetStock handles PATCH /api/v1/admin/products/{id}/stock
func (h *CatalogHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req SetStockRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if req.Stock == nil || *req.Stock < 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "stock must be a non-negative integer"},
		})
		return
	}

	product, err := h.catalog.SetStock(r.Context(), id.String(), *req.Stock)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	logAdmin(r, h.logger, "stock set", slog.String("product_id", product.ID), slog.Int("stock", product.Stock))
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// logAdmin records who performed an admin write.
func logAdmin(r *http.Request, logger *slog.Logger, msg string, attrs ...any) {
	attrs = append(attrs, slog.String("admin_id", middleware.UserIDFromContext(r.Context())))
	logger.InfoContext(r.Context(), msg, attrs...)
}
