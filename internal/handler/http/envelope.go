package http

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/httputil"
	"github.com/agamenonmacondo/avashop-sub001/pkg/validator"
)

// failure is the {success:false} body of cart, checkout and review routes.
type failure struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeFailure renders err in the storefront success envelope.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteJSON(w, http.StatusBadRequest, failure{
			Message: "request validation failed",
			Error:   "VALIDATION_ERROR",
			Fields:  valErr.Fields(),
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	httputil.LogServerError(r, err, status, logger)

	msg := apperrors.Message(err)
	if status == http.StatusBadRequest && apperrors.Code(err) == "INTERNAL_ERROR" {
		msg = err.Error()
	}
	httputil.WriteJSON(w, status, failure{
		Message: msg,
		Error:   apperrors.Code(err),
	})
}

// writeAdminError renders err in the {data, error} envelope.
func writeAdminError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteValidationError(w, err)
		return
	}
	httputil.WriteError(w, r, err, logger)
}
