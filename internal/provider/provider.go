package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// IntentCapture asks the provider to capture funds right after approval.
const IntentCapture = "CAPTURE"

// OrderItem is one purchase line sent to the provider. UnitPrice is in cents.
type OrderItem struct {
	ID        string
	Name      string
	Quantity  int
	UnitPrice int64
}

// CreateOrderInput holds the parameters for creating a provider order.
type CreateOrderInput struct {
	// ReferenceID ties the provider order back to our checkout attempt.
	ReferenceID string
	Items       []OrderItem
	Amount      int64
	Currency    string
	Intent      string
}

// CreateOrderResult holds the provider's answer to an order creation.
type CreateOrderResult struct {
	OrderID    string
	Status     string
	ApproveURL string
}

// CaptureStatus is the order status reported by the provider after capture.
type CaptureStatus string

// Capture statuses.
const (
	CaptureCompleted         CaptureStatus = "COMPLETED"
	CaptureDeclined          CaptureStatus = "DECLINED"
	CapturePending           CaptureStatus = "PENDING"
	CaptureFailed            CaptureStatus = "FAILED"
	CaptureVoided            CaptureStatus = "VOIDED"
	CapturePayerActionNeeded CaptureStatus = "PAYER_ACTION_REQUIRED"
)

// IsKnown reports whether s is a status this service understands.
func (s CaptureStatus) IsKnown() bool {
	switch s {
	case CaptureCompleted, CaptureDeclined, CapturePending, CaptureFailed, CaptureVoided, CapturePayerActionNeeded:
		return true
	}
	return false
}

// CaptureResult is the validated outcome of a capture call. Raw keeps the
// provider payload for diagnostics only; it is never sent to shoppers.
type CaptureResult struct {
	OrderID   string
	Status    CaptureStatus
	CaptureID string
	PayerID   string
	Raw       json.RawMessage
}

// Validate checks the result belongs to orderID and carries a known status.
func (r *CaptureResult) Validate(orderID string) error {
	if r == nil {
		return fmt.Errorf("capture result for %s is empty", orderID)
	}
	if r.OrderID != orderID {
		return fmt.Errorf("capture result order %q does not match requested order %q", r.OrderID, orderID)
	}
	if !r.Status.IsKnown() {
		return fmt.Errorf("capture result for %s has unknown status %q", orderID, r.Status)
	}
	return nil
}

// Completed reports whether funds were captured.
func (r *CaptureResult) Completed() bool {
	return r.Status == CaptureCompleted
}

// Provider defines the interface for payment provider integrations.
type Provider interface {
	// Name returns the provider name (e.g., "mock", "paypal").
	Name() string

	// CreateOrder creates a provider-side order awaiting shopper approval.
	CreateOrder(ctx context.Context, input *CreateOrderInput) (*CreateOrderResult, error)

	// CaptureOrder captures an approved order.
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
}
