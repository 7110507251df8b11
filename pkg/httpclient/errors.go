package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
)

// upstreamError covers the two error body shapes we talk to: the
// `{"error":{"code","message"}}` envelope used by our own services, and the
// `{"name","message","details":[{"issue"}],"debug_id"}` shape used by PayPal.
type upstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (u upstreamError) codeAndMessage() (code, message string, ok bool) {
	if u.Error != nil {
		return u.Error.Code, u.Error.Message, true
	}
	if u.Name == "" {
		return "", "", false
	}
	code, message = u.Name, u.Message
	if len(u.Details) > 0 && u.Details[0].Issue != "" {
		code = u.Details[0].Issue
		if u.Details[0].Description != "" {
			message = u.Details[0].Description
		}
	}
	if u.DebugID != "" {
		message = fmt.Sprintf("%s (debug_id %s)", message, u.DebugID)
	}
	return code, message, true
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError. Structured bodies keep their code and message; anything
// else becomes a plain error carrying the status and raw body. The body is
// consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var upstream upstreamError
	if json.Unmarshal(bodyBytes, &upstream) == nil {
		if code, message, ok := upstream.codeAndMessage(); ok {
			return mapUpstreamError(resp.StatusCode, code, message, serviceName)
		}
	}

	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

func mapUpstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusUnprocessableEntity:
		appErr := apperrors.PaymentFailed(qualifiedMsg)
		if code != "" {
			appErr.Code = code
		}
		return appErr
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
