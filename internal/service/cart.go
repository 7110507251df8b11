package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/astralisone/astralis-agency-server-sub001/internal/domain"
	"github.com/astralisone/astralis-agency-server-sub001/internal/event"
	"github.com/astralisone/astralis-agency-server-sub001/internal/repository"
	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
)

// AddItemInput holds the parameters for adding an item to the cart.
type AddItemInput struct {
	ID        string
	Name      string
	UnitPrice int64
	Quantity  int
	ImageURL  string
}

// CartService owns the cart of each session and mirrors every change to the
// repository.
type CartService struct {
	repo     repository.CartRepository
	producer *event.Producer
	logger   *slog.Logger
	cartTTL  time.Duration
	now      func() time.Time
}

// NewCartService creates a new cart service.
func NewCartService(repo repository.CartRepository, producer *event.Producer, logger *slog.Logger, cartTTL time.Duration) *CartService {
	return &CartService{
		repo:     repo,
		producer: producer,
		logger:   logger,
		cartTTL:  cartTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetCart returns the session's cart, or a new empty cart if none is stored.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	cart, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.NewCart(sessionID, s.now(), s.cartTTL), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// Summary returns the read-only order summary for the session's cart.
func (s *CartService) Summary(ctx context.Context, sessionID string) (domain.Summary, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.BuildSummary(cart), nil
}

// AddItem adds an item, merging it into an existing line with the same ID.
func (s *CartService) AddItem(ctx context.Context, sessionID string, input AddItemInput) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := cart.AddItem(domain.CartLineItem{
		ID:        input.ID,
		Name:      input.Name,
		UnitPrice: input.UnitPrice,
		Quantity:  input.Quantity,
		ImageURL:  input.ImageURL,
	}); err != nil {
		return nil, err
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("item_id", input.ID),
		slog.Int("quantity", input.Quantity),
	)
	return cart, nil
}

// UpdateQuantity sets the quantity of a line. Quantities below 1 are clamped to 1.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) (*domain.Cart, error) {
	if itemID == "" {
		return nil, apperrors.InvalidInput("item id is required")
	}

	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := cart.UpdateQuantity(itemID, quantity); err != nil {
		return nil, err
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("item_id", itemID),
		slog.Int("quantity", cart.Items[cart.FindItemIndex(itemID)].Quantity),
	)
	return cart, nil
}

// RemoveItem deletes a line. Removing an absent item returns the cart unchanged.
func (s *CartService) RemoveItem(ctx context.Context, sessionID, itemID string) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !cart.RemoveItem(itemID) {
		return cart, nil
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item removed from cart", slog.String("item_id", itemID))
	return cart, nil
}

// ClearCart removes all items from the session's cart.
func (s *CartService) ClearCart(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperrors.InvalidInput("session id is required")
	}

	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	if err := s.producer.PublishCartCleared(ctx, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared")
	return nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart) error {
	cart.Touch(s.now(), s.cartTTL)

	if err := s.repo.Save(ctx, cart); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}

	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("error", err.Error()),
		)
	}
	return nil
}
