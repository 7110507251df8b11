package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrInvalidInput, ErrUnauthorized, ErrInternal, ErrConflict,
		ErrServiceUnavail, ErrPaymentFailed, ErrEmptyCart, ErrInvalidState,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

func TestAppError_ErrorString(t *testing.T) {
	inner := fmt.Errorf("redis: connection refused")
	appErr := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: inner}
	assert.Equal(t, "INTERNAL_ERROR: something broke: redis: connection refused", appErr.Error())

	plain := &AppError{Code: "NOT_FOUND", Message: "cart item not found"}
	assert.Equal(t, "NOT_FOUND: cart item not found", plain.Error())
}

func TestAppError_UnwrapThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("start checkout: %w", EmptyCart())
	assert.True(t, errors.Is(err, ErrEmptyCart))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "EMPTY_CART", appErr.Code)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("cart item", "sku-1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"invalid input", InvalidInput("bad"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"unauthorized", Unauthorized("no token"), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"conflict", Conflict("busy"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"empty cart", EmptyCart(), "EMPTY_CART", http.StatusConflict, ErrEmptyCart},
		{"invalid state", InvalidState("nope"), "INVALID_STATE", http.StatusConflict, ErrInvalidState},
		{"unavailable", ServiceUnavailable("down"), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail},
		{"payment failed", PaymentFailed("declined"), "PAYMENT_FAILED", http.StatusUnprocessableEntity, ErrPaymentFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.status, tc.err.Status)
			assert.ErrorIs(t, tc.err, tc.sentinel)
		})
	}
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("pq: password authentication failed")
	err := Internal(cause)
	assert.Equal(t, "an internal error occurred", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("x", "1")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("wrap: %w", ErrNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrEmptyCart))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrInvalidState))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrInvalidInput))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrServiceUnavail))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
