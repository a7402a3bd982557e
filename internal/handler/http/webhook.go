package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/service"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/httputil"
)

// WebhookHandler receives payment processor callbacks.
type WebhookHandler struct {
	service *service.WebhookService
	logger  *slog.Logger
}

// NewWebhookHandler creates a new webhook HTTP handler.
func NewWebhookHandler(svc *service.WebhookService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{service: svc, logger: logger}
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	OrderID   string `json:"orderId,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Receive handles POST /api/v1/webhooks/{provider}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	h.receive(w, r, chi.URLParam(r, "provider"))
}

// ReceiveBold handles POST /api/v1/webhooks/payments, the storefront's
// original callback path.
func (h *WebhookHandler) ReceiveBold(w http.ResponseWriter, r *http.Request) {
	h.receive(w, r, domain.ProviderBold)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request, provider string) {
	// The signature covers the exact bytes, so read the body before decoding.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httputil.WriteJSON(w, status, webhookResponse{Error: "unreadable body"})
		return
	}

	res, err := h.service.Handle(r.Context(), provider, r.Header, body)
	if err != nil {
		status := apperrors.HTTPStatus(err)
		httputil.LogServerError(r, err, status, h.logger)
		resp := webhookResponse{Error: apperrors.Message(err)}
		if res != nil {
			resp.OrderID = res.OrderID
		}
		httputil.WriteJSON(w, status, resp)
		return
	}

	resp := webhookResponse{
		Received:  res.Accepted(),
		OrderID:   res.OrderID,
		Duplicate: res.Outcome == domain.OutcomeDuplicate,
		Outcome:   string(res.Outcome),
	}
	status := http.StatusOK
	if !res.Accepted() {
		status = http.StatusConflict
	}
	httputil.WriteJSON(w, status, resp)
}
