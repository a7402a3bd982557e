package http

import (
	"log/slog"
	"net/http"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/service"
	"github.com/agamenonmacondo/avashop-sub001/pkg/httputil"
)

// ReviewHandler accepts token authorised reviews.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{service: svc, logger: logger}
}

type reviewResponse struct {
	Success bool           `json:"success"`
	Review  *domain.Review `json:"review"`
}

// SubmitReview handles POST /api/v1/reviews
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitReviewInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	review, err := h.service.Submit(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, reviewResponse{Success: true, Review: review})
}
