package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/astralisone/astralis-agency-server-sub001/internal/domain"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/database"
	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
)

const cartKeyPrefix = "cart:"

// CartRepository mirrors session carts into Redis as JSON, one key per session.
type CartRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCartRepository creates a Redis-backed cart repository. Keys expire after ttl.
func NewCartRepository(client redis.UniversalClient, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

func cartKey(sessionID string) string {
	return cartKeyPrefix + sessionID
}

// Get retrieves a session cart from Redis.
func (r *CartRepository) Get(ctx context.Context, sessionID string) (cart *domain.Cart, err error) {
	key := cartKey(sessionID)
	ctx, end := database.TraceRedis(ctx, "GET", key)
	defer func() { end(err) }()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", sessionID)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	cart = &domain.Cart{}
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartLineItem{}
	}
	return cart, nil
}

// Save writes the cart with the configured TTL, overwriting any stored copy.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) (err error) {
	key := cartKey(cart.SessionID)
	ctx, end := database.TraceRedis(ctx, "SET", key)
	defer func() { end(err) }()

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

// Delete removes a session cart. Deleting a missing cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, sessionID string) (err error) {
	key := cartKey(sessionID)
	ctx, end := database.TraceRedis(ctx, "DEL", key)
	defer func() { end(err) }()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}
