package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/astralisone/astralis-agency-server-sub001/internal/domain"
	pkgkafka "github.com/astralisone/astralis-agency-server-sub001/pkg/kafka"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/logger"
)

// Kafka topics for storefront domain events.
var (
	TopicCartUpdated          = pkgkafka.Topic("cart", "updated")
	TopicCartCleared          = pkgkafka.Topic("cart", "cleared")
	TopicCheckoutOrderCreated = pkgkafka.Topic("checkout", "order_created")
	TopicCheckoutSucceeded    = pkgkafka.Topic("checkout", "succeeded")
	TopicCheckoutFailed       = pkgkafka.Topic("checkout", "failed")
)

// Aggregate types.
const (
	AggregateTypeCart     = "cart"
	AggregateTypeCheckout = "checkout"
)

// Source identifies events published by this service.
const Source = "storefront"

// Publisher is the part of pkg/kafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID string                `json:"session_id"`
	Items     []domain.CartLineItem `json:"items"`
	ItemCount int                   `json:"item_count"`
	Subtotal  int64                 `json:"subtotal"`
	Currency  string                `json:"currency"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	SessionID string `json:"session_id"`
}

// CheckoutData is the payload for checkout events.
type CheckoutData struct {
	AttemptID       string `json:"attempt_id"`
	SessionID       string `json:"session_id"`
	Status          string `json:"status"`
	Provider        string `json:"provider"`
	ProviderOrderID string `json:"provider_order_id,omitempty"`
	CaptureID       string `json:"capture_id,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Attempts        int    `json:"attempts"`
}

// Producer publishes storefront domain events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	data := CartUpdatedData{
		SessionID: cart.SessionID,
		Items:     cart.Items,
		ItemCount: cart.ItemCount(),
		Subtotal:  cart.Subtotal(),
		Currency:  cart.Currency,
	}
	return p.publish(ctx, TopicCartUpdated, cart.SessionID, AggregateTypeCart, data)
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, sessionID string) error {
	return p.publish(ctx, TopicCartCleared, sessionID, AggregateTypeCart, CartClearedData{SessionID: sessionID})
}

// PublishOrderCreated publishes checkout.order_created.
func (p *Producer) PublishOrderCreated(ctx context.Context, a *domain.CheckoutAttempt) error {
	return p.publish(ctx, TopicCheckoutOrderCreated, a.ID, AggregateTypeCheckout, checkoutData(a))
}

// PublishCheckoutSucceeded publishes checkout.succeeded.
func (p *Producer) PublishCheckoutSucceeded(ctx context.Context, a *domain.CheckoutAttempt) error {
	return p.publish(ctx, TopicCheckoutSucceeded, a.ID, AggregateTypeCheckout, checkoutData(a))
}

// PublishCheckoutFailed publishes checkout.failed.
func (p *Producer) PublishCheckoutFailed(ctx context.Context, a *domain.CheckoutAttempt) error {
	return p.publish(ctx, TopicCheckoutFailed, a.ID, AggregateTypeCheckout, checkoutData(a))
}

func checkoutData(a *domain.CheckoutAttempt) CheckoutData {
	return CheckoutData{
		AttemptID:       a.ID,
		SessionID:       a.SessionID,
		Status:          string(a.Status),
		Provider:        a.Provider,
		ProviderOrderID: a.ProviderOrderID,
		CaptureID:       a.CaptureID,
		Amount:          a.Amount,
		Currency:        a.Currency,
		Attempts:        a.Attempts,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
