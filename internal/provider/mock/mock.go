package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/astralisone/astralis-agency-server-sub001/internal/provider"
)

// ErrSimulated is returned when the provider is configured to fail.
var ErrSimulated = errors.New("mock provider: simulated failure")

// Options configures simulated failures.
type Options struct {
	FailCreate  bool
	FailCapture bool
	// CaptureStatus overrides the reported status. Defaults to COMPLETED.
	CaptureStatus provider.CaptureStatus
}

// Provider is an in-memory payment provider for development. Order ids are
// deterministic: MOCK-ORDER-1, MOCK-ORDER-2, ...
type Provider struct {
	opts Options

	mu       sync.Mutex
	seq      int
	orders   map[string]int64
	captured map[string]bool
}

// NewProvider creates a new mock payment provider.
func NewProvider(opts Options) *Provider {
	if opts.CaptureStatus == "" {
		opts.CaptureStatus = provider.CaptureCompleted
	}
	return &Provider{
		opts:     opts,
		orders:   make(map[string]int64),
		captured: make(map[string]bool),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "mock"
}

// CreateOrder records an order for the requested amount.
func (p *Provider) CreateOrder(_ context.Context, input *provider.CreateOrderInput) (*provider.CreateOrderResult, error) {
	if p.opts.FailCreate {
		return nil, ErrSimulated
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	id := fmt.Sprintf("MOCK-ORDER-%d", p.seq)
	p.orders[id] = input.Amount

	return &provider.CreateOrderResult{
		OrderID:    id,
		Status:     "CREATED",
		ApproveURL: "https://mock.invalid/checkoutnow?token=" + id,
	}, nil
}

// CaptureOrder captures a previously created order once.
func (p *Provider) CaptureOrder(_ context.Context, orderID string) (*provider.CaptureResult, error) {
	if p.opts.FailCapture {
		return nil, ErrSimulated
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.orders[orderID]; !ok {
		return nil, fmt.Errorf("mock provider: order %s not found", orderID)
	}
	if p.captured[orderID] {
		return nil, fmt.Errorf("mock provider: order %s already captured", orderID)
	}

	status := p.opts.CaptureStatus
	result := &provider.CaptureResult{
		OrderID: orderID,
		Status:  status,
		PayerID: "MOCK-PAYER",
	}
	if status == provider.CaptureCompleted {
		p.captured[orderID] = true
		result.CaptureID = "MOCK-CAPTURE-" + orderID
	}
	result.Raw, _ = json.Marshal(map[string]string{"id": orderID, "status": string(status)})

	return result, nil
}
