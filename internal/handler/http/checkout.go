package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/astralisone/astralis-agency-server-sub001/internal/service"
	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/httputil"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/pagination"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/validator"
)

// emptyCartRedirect is where the frontend sends shoppers who try to check out
// with nothing in the cart.
const emptyCartRedirect = "/cart"

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// CaptureRequest is the JSON request body for capturing an approved order.
type CaptureRequest struct {
	OrderID string `json:"order_id" validate:"notblank,max=64"`
}

// Start handles POST /api/v1/checkout
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.StartCheckout(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: attempt})
}

// List handles GET /api/v1/checkout?page=&per_page=
func (h *CheckoutHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListAttempts(r.Context(), sessionID(r), pagination.FromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Get handles GET /api/v1/checkout/{id}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	attempt, err := h.service.GetAttempt(r.Context(), sessionID(r), id.String())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: attempt})
}

// Retry handles POST /api/v1/checkout/{id}/retry
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	attempt, err := h.service.RetryCheckout(r.Context(), sessionID(r), id.String())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: attempt})
}

// Capture handles POST /api/v1/checkout/capture
func (h *CheckoutHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	attempt, err := h.service.CaptureOrder(r.Context(), sessionID(r), req.OrderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: attempt})
}

// writeError adds the cart redirect hint to empty-cart errors.
func (h *CheckoutHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, apperrors.ErrEmptyCart) {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	body := httputil.ErrorBody(r, err, h.logger)
	body.Redirect = emptyCartRedirect
	httputil.WriteJSON(w, apperrors.HTTPStatus(err), httputil.Response{Error: body})
}
