package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/astralisone/astralis-agency-server-sub001/internal/domain"
	"github.com/astralisone/astralis-agency-server-sub001/internal/event"
	"github.com/astralisone/astralis-agency-server-sub001/internal/provider"
	"github.com/astralisone/astralis-agency-server-sub001/internal/repository"
	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/pagination"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/tracing"
)

const tracerName = "github.com/astralisone/astralis-agency-server-sub001/internal/service"

// ErrCaptureInProgress is returned when another request is already capturing
// the same provider order.
var ErrCaptureInProgress = &apperrors.AppError{
	Code:    "CAPTURE_IN_PROGRESS",
	Message: "this order is already being processed",
	Status:  http.StatusConflict,
	Err:     apperrors.ErrConflict,
}

// settleTimeout bounds the bookkeeping that follows a provider call. It runs
// detached from the request so a client hanging up cannot strand an attempt.
const settleTimeout = 10 * time.Second

// CheckoutService drives checkout attempts through the provider's
// create, approve and capture handshake.
type CheckoutService struct {
	attempts repository.CheckoutRepository
	carts    *CartService
	provider provider.Provider
	lock     repository.CaptureLock
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	attempts repository.CheckoutRepository,
	carts *CartService,
	p provider.Provider,
	lock repository.CaptureLock,
	producer *event.Producer,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		attempts: attempts,
		carts:    carts,
		provider: p,
		lock:     lock,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// StartCheckout snapshots the session's cart and creates a provider order for
// it. A provider failure is not returned as an error: the attempt comes back
// in the failed state with a generic reason.
func (s *CheckoutService) StartCheckout(ctx context.Context, sessionID string) (*domain.CheckoutAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "CheckoutService.StartCheckout")
	defer span.End()

	cart, err := s.carts.GetCart(ctx, sessionID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, apperrors.EmptyCart()
	}

	attempt := domain.NewCheckoutAttempt(s.newID(), sessionID, s.provider.Name(), cart.Snapshot(), s.now())
	if err := attempt.Begin(s.now()); err != nil {
		return nil, err
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("create checkout attempt: %w", err)
	}

	span.SetAttributes(attribute.String("checkout.attempt_id", attempt.ID))
	if err := s.createProviderOrder(ctx, attempt); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return attempt, nil
}

// RetryCheckout moves a failed attempt back to pending with a fresh snapshot
// of the cart and creates a new provider order.
func (s *CheckoutService) RetryCheckout(ctx context.Context, sessionID, attemptID string) (*domain.CheckoutAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "CheckoutService.RetryCheckout",
		attribute.String("checkout.attempt_id", attemptID),
	)
	defer span.End()

	attempt, err := s.GetAttempt(ctx, sessionID, attemptID)
	if err != nil {
		return nil, err
	}

	cart, err := s.carts.GetCart(ctx, sessionID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, apperrors.EmptyCart()
	}

	if err := attempt.Retry(cart.Snapshot(), s.now()); err != nil {
		return nil, err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("update checkout attempt: %w", err)
	}

	if err := s.createProviderOrder(ctx, attempt); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return attempt, nil
}

// createProviderOrder asks the provider for an order covering the attempt's
// snapshot and records the outcome. attempt must be pending.
func (s *CheckoutService) createProviderOrder(ctx context.Context, attempt *domain.CheckoutAttempt) error {
	items := make([]provider.OrderItem, len(attempt.Items))
	for i, item := range attempt.Items {
		items[i] = provider.OrderItem{
			ID:        item.ID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	result, err := s.provider.CreateOrder(ctx, &provider.CreateOrderInput{
		ReferenceID: attempt.ID,
		Items:       items,
		Amount:      attempt.Amount,
		Currency:    attempt.Currency,
		Intent:      provider.IntentCapture,
	})
	if err == nil && (result == nil || result.OrderID == "") {
		err = errors.New("provider returned no order id")
	}

	ctx, cancel := settleContext(ctx)
	defer cancel()

	if err != nil {
		s.logger.ErrorContext(ctx, "provider order creation failed",
			slog.String("attempt_id", attempt.ID),
			slog.String("provider", attempt.Provider),
			slog.String("error", err.Error()),
		)
		checkoutAttempts.WithLabelValues(outcomeCreateFailed).Inc()
		return s.fail(ctx, attempt)
	}

	if err := attempt.OrderCreated(result.OrderID, s.now()); err != nil {
		return err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return fmt.Errorf("update checkout attempt: %w", err)
	}
	checkoutAttempts.WithLabelValues(outcomeOrderCreated).Inc()

	if err := s.producer.PublishOrderCreated(ctx, attempt); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.order_created event",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "provider order created",
		slog.String("attempt_id", attempt.ID),
		slog.String("provider_order_id", result.OrderID),
		slog.Int64("amount", attempt.Amount),
	)
	return nil
}

// CaptureOrder captures an approved provider order. Only one capture per
// order runs at a time; a concurrent request gets ErrCaptureInProgress. On
// COMPLETED the session's cart is cleared and the attempt succeeds; any other
// outcome fails the attempt and leaves the cart alone.
func (s *CheckoutService) CaptureOrder(ctx context.Context, sessionID, providerOrderID string) (*domain.CheckoutAttempt, error) {
	if providerOrderID == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "CheckoutService.CaptureOrder",
		attribute.String("checkout.provider_order_id", providerOrderID),
	)
	defer span.End()

	attempt, err := s.attemptForOrder(ctx, sessionID, providerOrderID)
	if err != nil {
		return nil, err
	}
	if attempt.Status == domain.StatusSucceeded {
		return attempt, nil
	}

	token, ok, err := s.lock.Acquire(ctx, providerOrderID)
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.ErrorContext(ctx, "failed to acquire capture lock",
			slog.String("provider_order_id", providerOrderID),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable("payment processing is temporarily unavailable")
	}
	if !ok {
		return nil, ErrCaptureInProgress
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), providerOrderID, token); err != nil {
			s.logger.WarnContext(ctx, "failed to release capture lock",
				slog.String("provider_order_id", providerOrderID),
				slog.String("error", err.Error()),
			)
		}
	}()

	// Reload under the lock; a capture that finished between the first read
	// and Acquire must not run again.
	attempt, err = s.attemptForOrder(ctx, sessionID, providerOrderID)
	if err != nil {
		return nil, err
	}
	if attempt.Status == domain.StatusSucceeded {
		return attempt, nil
	}

	span.SetAttributes(attribute.String("checkout.attempt_id", attempt.ID))
	if err := attempt.MarkApproved(s.now()); err != nil {
		return nil, err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		tracing.RecordError(span, err)
		s.logger.ErrorContext(ctx, "failed to mark checkout attempt capturing",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
		// Nothing was sent to the provider; the stored attempt is still
		// awaiting approval and the capture can be repeated.
		return nil, apperrors.ServiceUnavailable(domain.FailureMessage)
	}

	result, err := s.provider.CaptureOrder(ctx, providerOrderID)
	if err == nil {
		err = result.Validate(providerOrderID)
	}

	ctx, cancel := settleContext(ctx)
	defer cancel()

	if err == nil && !result.Completed() {
		err = fmt.Errorf("capture status %s", result.Status)
	}
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.ErrorContext(ctx, "provider capture failed",
			slog.String("attempt_id", attempt.ID),
			slog.String("provider_order_id", providerOrderID),
			slog.String("error", err.Error()),
		)
		checkoutAttempts.WithLabelValues(outcomeFailed).Inc()
		if err := s.fail(ctx, attempt); err != nil {
			return nil, err
		}
		return attempt, nil
	}

	if err := attempt.Succeed(result.CaptureID, result.PayerID, s.now()); err != nil {
		return nil, err
	}
	checkoutAttempts.WithLabelValues(outcomeSucceeded).Inc()

	// Funds are captured at this point, so later failures are logged and the
	// attempt is still reported as succeeded.
	if err := s.attempts.Update(ctx, attempt); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist succeeded checkout attempt",
			slog.String("attempt_id", attempt.ID),
			slog.String("capture_id", attempt.CaptureID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.carts.ClearCart(ctx, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear cart after capture",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.producer.PublishCheckoutSucceeded(ctx, attempt); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.succeeded event",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "checkout captured",
		slog.String("attempt_id", attempt.ID),
		slog.String("provider_order_id", providerOrderID),
		slog.String("capture_id", attempt.CaptureID),
		slog.Int64("amount", attempt.Amount),
	)
	return attempt, nil
}

// GetAttempt returns a checkout attempt owned by the session.
func (s *CheckoutService) GetAttempt(ctx context.Context, sessionID, attemptID string) (*domain.CheckoutAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get checkout attempt: %w", err)
	}
	if attempt.SessionID != sessionID {
		return nil, apperrors.NotFound("checkout", attemptID)
	}
	return attempt, nil
}

// ListAttempts returns one page of the session's checkout history, newest first.
func (s *CheckoutService) ListAttempts(ctx context.Context, sessionID string, params pagination.Params) (pagination.Result[domain.CheckoutAttempt], error) {
	if sessionID == "" {
		return pagination.Result[domain.CheckoutAttempt]{}, apperrors.InvalidInput("session id is required")
	}
	if params.PerPage <= 0 {
		params = pagination.DefaultParams()
	}

	attempts, total, err := s.attempts.ListBySession(ctx, sessionID, params.Page, params.PerPage)
	if err != nil {
		return pagination.Result[domain.CheckoutAttempt]{}, fmt.Errorf("list checkout attempts: %w", err)
	}
	return pagination.NewResult(attempts, total, params), nil
}

func (s *CheckoutService) attemptForOrder(ctx context.Context, sessionID, providerOrderID string) (*domain.CheckoutAttempt, error) {
	attempt, err := s.attempts.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return nil, fmt.Errorf("get checkout attempt: %w", err)
	}
	if attempt.SessionID != sessionID {
		return nil, apperrors.NotFound("checkout", providerOrderID)
	}
	return attempt, nil
}

// settleContext keeps ctx's values (trace span, logger fields) and replaces
// its cancellation with settleTimeout.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// fail moves attempt to failed, persists it and publishes checkout.failed.
func (s *CheckoutService) fail(ctx context.Context, attempt *domain.CheckoutAttempt) error {
	if err := attempt.Fail(domain.FailureMessage, s.now()); err != nil {
		return err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return fmt.Errorf("update checkout attempt: %w", err)
	}
	if err := s.producer.PublishCheckoutFailed(ctx, attempt); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.failed event",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
