package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/astralisone/astralis-agency-server-sub001/internal/domain"
	"github.com/astralisone/astralis-agency-server-sub001/internal/event"
	"github.com/astralisone/astralis-agency-server-sub001/internal/provider"
	pkgkafka "github.com/astralisone/astralis-agency-server-sub001/pkg/kafka"
)

// --- Mock Repositories ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockCartRepository) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type mockCheckoutRepository struct {
	mock.Mock
}

func (m *mockCheckoutRepository) Create(ctx context.Context, a *domain.CheckoutAttempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockCheckoutRepository) GetByID(ctx context.Context, id string) (*domain.CheckoutAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutAttempt), args.Error(1)
}

func (m *mockCheckoutRepository) GetByProviderOrderID(ctx context.Context, orderID string) (*domain.CheckoutAttempt, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutAttempt), args.Error(1)
}

func (m *mockCheckoutRepository) Update(ctx context.Context, a *domain.CheckoutAttempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockCheckoutRepository) ListBySession(ctx context.Context, sessionID string, page, perPage int) ([]domain.CheckoutAttempt, int, error) {
	args := m.Called(ctx, sessionID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.CheckoutAttempt), args.Int(1), args.Error(2)
}

type mockCaptureLock struct {
	mock.Mock
}

func (m *mockCaptureLock) Acquire(ctx context.Context, orderID string) (string, bool, error) {
	args := m.Called(ctx, orderID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockCaptureLock) Release(ctx context.Context, orderID, token string) error {
	args := m.Called(ctx, orderID, token)
	return args.Error(0)
}

// --- Mock Provider ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "test" }

func (m *mockProvider) CreateOrder(ctx context.Context, input *provider.CreateOrderInput) (*provider.CreateOrderResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CreateOrderResult), args.Error(1)
}

func (m *mockProvider) CaptureOrder(ctx context.Context, orderID string) (*provider.CaptureResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CaptureResult), args.Error(1)
}

// --- Event Publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

var errBrokerDown = errors.New("broker down")

// --- Test Helpers ---

const (
	testSessionID = "session-1"
	testTTL       = 7 * 24 * time.Hour
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestCartService(repo *mockCartRepository, pub event.Publisher) *CartService {
	logger := newTestLogger()
	svc := NewCartService(repo, event.NewProducer(pub, logger), logger, testTTL)
	svc.now = func() time.Time { return testNow }
	return svc
}

func cartWith(items ...domain.CartLineItem) *domain.Cart {
	cart := domain.NewCart(testSessionID, testNow, testTTL)
	cart.Items = append(cart.Items, items...)
	return cart
}
