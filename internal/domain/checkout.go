package domain

import (
	"fmt"
	"time"

	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
)

// CheckoutStatus is the state of one checkout attempt.
type CheckoutStatus string

// Checkout attempt states.
const (
	StatusIdle             CheckoutStatus = "idle"
	StatusPending          CheckoutStatus = "pending"
	StatusAwaitingApproval CheckoutStatus = "awaiting_approval"
	StatusCapturing        CheckoutStatus = "capturing"
	StatusSucceeded        CheckoutStatus = "succeeded"
	StatusFailed           CheckoutStatus = "failed"
)

// FailureMessage is the only failure text shown to shoppers.
const FailureMessage = "payment failed, please try again"

var transitions = map[CheckoutStatus][]CheckoutStatus{
	StatusIdle:             {StatusPending},
	StatusPending:          {StatusAwaitingApproval, StatusFailed},
	StatusAwaitingApproval: {StatusCapturing},
	StatusCapturing:        {StatusSucceeded, StatusFailed},
	StatusFailed:           {StatusPending},
}

// CheckoutAttempt tracks one pass through create-order, approval and capture
// with the payment provider. Items and Amount are a snapshot of the cart at
// the time the provider order was created.
type CheckoutAttempt struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"-"`
	Status          CheckoutStatus `json:"status"`
	Items           []CartLineItem `json:"items"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Provider        string         `json:"provider"`
	ProviderOrderID string         `json:"provider_order_id,omitempty"`
	CaptureID       string         `json:"capture_id,omitempty"`
	PayerID         string         `json:"payer_id,omitempty"`
	FailureReason   string         `json:"failure_reason,omitempty"`
	Attempts        int            `json:"attempts"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewCheckoutAttempt creates an idle attempt for a snapshot of items.
func NewCheckoutAttempt(id, sessionID, provider string, items []CartLineItem, now time.Time) *CheckoutAttempt {
	a := &CheckoutAttempt{
		ID:        id,
		SessionID: sessionID,
		Status:    StatusIdle,
		Currency:  CurrencyUSD,
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.setItems(items)
	return a
}

func (a *CheckoutAttempt) setItems(items []CartLineItem) {
	a.Items = make([]CartLineItem, len(items))
	copy(a.Items, items)
	a.Amount = 0
	for _, item := range a.Items {
		a.Amount += item.LineTotal()
	}
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (a *CheckoutAttempt) CanTransitionTo(next CheckoutStatus) bool {
	for _, s := range transitions[a.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func (a *CheckoutAttempt) transition(next CheckoutStatus, now time.Time) error {
	if !a.CanTransitionTo(next) {
		return apperrors.InvalidState(fmt.Sprintf("checkout cannot move from %s to %s", a.Status, next))
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// Begin moves an idle attempt to pending.
func (a *CheckoutAttempt) Begin(now time.Time) error {
	if a.Status != StatusIdle {
		return apperrors.InvalidState(fmt.Sprintf("checkout cannot begin from %s", a.Status))
	}
	if err := a.transition(StatusPending, now); err != nil {
		return err
	}
	a.Attempts++
	return nil
}

// Retry moves a failed attempt back to pending with a fresh cart snapshot.
// Provider references from the previous pass are dropped.
func (a *CheckoutAttempt) Retry(items []CartLineItem, now time.Time) error {
	if a.Status != StatusFailed {
		return apperrors.InvalidState(fmt.Sprintf("only failed checkouts can be retried, current status is %s", a.Status))
	}
	if err := a.transition(StatusPending, now); err != nil {
		return err
	}
	a.setItems(items)
	a.ProviderOrderID = ""
	a.CaptureID = ""
	a.PayerID = ""
	a.FailureReason = ""
	a.Attempts++
	return nil
}

// OrderCreated records the provider order and waits for shopper approval.
func (a *CheckoutAttempt) OrderCreated(providerOrderID string, now time.Time) error {
	if err := a.transition(StatusAwaitingApproval, now); err != nil {
		return err
	}
	a.ProviderOrderID = providerOrderID
	return nil
}

// MarkApproved records that the shopper approved the order and capture begins.
func (a *CheckoutAttempt) MarkApproved(now time.Time) error {
	return a.transition(StatusCapturing, now)
}

// Succeed records a completed capture.
func (a *CheckoutAttempt) Succeed(captureID, payerID string, now time.Time) error {
	if err := a.transition(StatusSucceeded, now); err != nil {
		return err
	}
	a.CaptureID = captureID
	a.PayerID = payerID
	return nil
}

// Fail moves the attempt to failed with a shopper-facing reason.
func (a *CheckoutAttempt) Fail(reason string, now time.Time) error {
	if err := a.transition(StatusFailed, now); err != nil {
		return err
	}
	a.FailureReason = reason
	return nil
}

// IsTerminal reports whether the attempt ended. Failed attempts can still be retried.
func (a *CheckoutAttempt) IsTerminal() bool {
	return a.Status == StatusSucceeded || a.Status == StatusFailed
}

// IsValidStatus checks whether s names a checkout state.
func IsValidStatus(s CheckoutStatus) bool {
	switch s {
	case StatusIdle, StatusPending, StatusAwaitingApproval, StatusCapturing, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}
