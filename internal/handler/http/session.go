package http

import (
	"log/slog"
	"net/http"

	"github.com/astralisone/astralis-agency-server-sub001/internal/service"
	"github.com/astralisone/astralis-agency-server-sub001/internal/session"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/httputil"
)

// SessionIssuer starts new cart sessions.
type SessionIssuer interface {
	Issue() (*session.Issued, error)
}

// SessionHandler handles session start and teardown.
type SessionHandler struct {
	issuer SessionIssuer
	carts  *service.CartService
	logger *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(issuer SessionIssuer, carts *service.CartService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		issuer: issuer,
		carts:  carts,
		logger: logger,
	}
}

// Start handles POST /api/v1/session
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	issued, err := h.issuer.Issue()
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "session started", slog.String("session_id", issued.SessionID))
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: issued})
}

// End handles DELETE /api/v1/session. The session's cart is dropped; the
// token itself stays valid until it expires but points at an empty cart.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.ClearCart(r.Context(), sessionID(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
