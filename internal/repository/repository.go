package repository

import (
	"context"

	"github.com/astralisone/astralis-agency-server-sub001/internal/domain"
)

// CartRepository defines the interface for cart persistence operations.
type CartRepository interface {
	// Get retrieves the cart for a session. Returns apperrors.ErrNotFound if none is stored.
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)

	// Save stores the cart, replacing any previous copy. Last write wins.
	Save(ctx context.Context, cart *domain.Cart) error

	// Delete removes the cart for a session.
	Delete(ctx context.Context, sessionID string) error
}

// CheckoutRepository persists checkout attempts.
type CheckoutRepository interface {
	Create(ctx context.Context, attempt *domain.CheckoutAttempt) error
	GetByID(ctx context.Context, id string) (*domain.CheckoutAttempt, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*domain.CheckoutAttempt, error)
	Update(ctx context.Context, attempt *domain.CheckoutAttempt) error

	// ListBySession returns one page of a session's attempts, newest first,
	// and the total number of attempts for the session.
	ListBySession(ctx context.Context, sessionID string, page, perPage int) ([]domain.CheckoutAttempt, int, error)
}

// CaptureLock guards a provider order against concurrent capture requests.
type CaptureLock interface {
	// Acquire returns a token and true if the lock was taken, or false if another
	// capture for the same order holds it.
	Acquire(ctx context.Context, providerOrderID string) (token string, ok bool, err error)

	// Release frees the lock if token still owns it.
	Release(ctx context.Context, providerOrderID, token string) error
}
