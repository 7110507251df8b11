package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/astralisone/astralis-agency-server-sub001/internal/domain"
	"github.com/astralisone/astralis-agency-server-sub001/internal/provider"
	"github.com/astralisone/astralis-agency-server-sub001/internal/service"
	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/httputil"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/validator"
)

// PayPalHandler serves the /api/paypal routes the storefront's PayPal buttons
// call. Responses are bare objects rather than the {data}/{error} envelope.
type PayPalHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewPayPalHandler creates a new legacy PayPal HTTP handler.
func NewPayPalHandler(svc *service.CheckoutService, logger *slog.Logger) *PayPalHandler {
	return &PayPalHandler{
		service: svc,
		logger:  logger,
	}
}

// CreateOrderResponse is returned by create-order.
type CreateOrderResponse struct {
	ID string `json:"id"`
}

// CaptureOrderRequest is the body of capture-order.
type CaptureOrderRequest struct {
	OrderID string `json:"orderId" validate:"notblank,max=64"`
}

// CaptureOrderResponse is returned by a completed capture-order.
type CaptureOrderResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CaptureID string `json:"capture_id,omitempty"`
	PayerID   string `json:"payer_id,omitempty"`
}

// CreateOrder handles POST /api/paypal/create-order
func (h *PayPalHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.StartCheckout(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if attempt.Status != domain.StatusAwaitingApproval {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.MessageResponse{Message: domain.FailureMessage})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CreateOrderResponse{ID: attempt.ProviderOrderID})
}

// CaptureOrder handles POST /api/paypal/capture-order
func (h *PayPalHandler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	var req CaptureOrderRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.MessageResponse{Message: "orderId is required"})
		return
	}

	attempt, err := h.service.CaptureOrder(r.Context(), sessionID(r), req.OrderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if attempt.Status != domain.StatusSucceeded {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.MessageResponse{Message: domain.FailureMessage})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, CaptureOrderResponse{
		ID:        attempt.ProviderOrderID,
		Status:    string(provider.CaptureCompleted),
		CaptureID: attempt.CaptureID,
		PayerID:   attempt.PayerID,
	})
}

// writeError maps errors onto the {message} shape: a concurrent capture keeps
// its 409, other client errors become 400 and everything else 500.
func (h *PayPalHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := httputil.ErrorBody(r, err, h.logger)
	status := apperrors.HTTPStatus(err)

	switch {
	case errors.Is(err, service.ErrCaptureInProgress):
		httputil.WriteJSON(w, http.StatusConflict, httputil.MessageResponse{Message: body.Message})
	case status < http.StatusInternalServerError:
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.MessageResponse{Message: body.Message})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.MessageResponse{Message: domain.FailureMessage})
	}
}
