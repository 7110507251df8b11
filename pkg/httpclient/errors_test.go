package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestParseResponseError_Envelope(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusNotFound, apperrors.ErrNotFound},
		{http.StatusBadRequest, apperrors.ErrInvalidInput},
		{http.StatusConflict, apperrors.ErrConflict},
		{http.StatusUnauthorized, apperrors.ErrUnauthorized},
		{http.StatusForbidden, apperrors.ErrUnauthorized},
		{http.StatusServiceUnavailable, apperrors.ErrServiceUnavail},
	}

	for _, tc := range tests {
		err := ParseResponseError(response(tc.status, `{"error":{"code":"X","message":"boom"}}`), "catalog")
		assert.ErrorIs(t, err, tc.sentinel, "status %d", tc.status)
	}
}

func TestParseResponseError_PayPalDeclined(t *testing.T) {
	body := `{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed.",
		"debug_id":"abc123","details":[{"issue":"INSTRUMENT_DECLINED","description":"The instrument presented was declined."}]}`

	err := ParseResponseError(response(http.StatusUnprocessableEntity, body), "paypal")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSTRUMENT_DECLINED", appErr.Code)
	assert.Contains(t, appErr.Message, "declined")
	assert.Contains(t, appErr.Message, "abc123")
	assert.ErrorIs(t, err, apperrors.ErrPaymentFailed)
}

func TestParseResponseError_PayPalWithoutDetails(t *testing.T) {
	body := `{"name":"RESOURCE_NOT_FOUND","message":"The specified resource does not exist."}`
	err := ParseResponseError(response(http.StatusNotFound, body), "paypal")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestParseResponseError_ServerError(t *testing.T) {
	err := ParseResponseError(response(http.StatusBadGateway, `{"error":{"code":"BAD_GATEWAY","message":"upstream"}}`), "paypal")
	require.Error(t, err)

	var appErr *apperrors.AppError
	assert.False(t, errors.As(err, &appErr))
	assert.Contains(t, err.Error(), "502")
}

func TestParseResponseError_UnstructuredBody(t *testing.T) {
	err := ParseResponseError(response(http.StatusBadRequest, `<html>nope</html>`), "paypal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paypal returned status 400")
	assert.Contains(t, err.Error(), "<html>")
}

func TestParseResponseError_OtherStatusKeepsCode(t *testing.T) {
	err := ParseResponseError(response(http.StatusTooManyRequests, `{"error":{"code":"RATE_LIMITED","message":"slow down"}}`), "paypal")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "RATE_LIMITED", appErr.Code)
	assert.Equal(t, http.StatusTooManyRequests, appErr.Status)
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(400))
	assert.True(t, IsClientError(499))
	assert.False(t, IsClientError(500))
	assert.False(t, IsClientError(200))
}
