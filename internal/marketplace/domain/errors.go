package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMarketplaceUnknown      = errors.New("marketplace_unknown")
	ErrMarketplaceNotSupported = errors.New("marketplace_not_supported")
	ErrAdapterNotFound         = errors.New("adapter_not_found")
	ErrInvalidConfig           = errors.New("invalid_config")
	ErrInvalidSignature        = errors.New("invalid_signature")
	ErrInvalidPayload          = errors.New("invalid_payload")
	ErrEventIgnored            = errors.New("event_ignored")
	ErrConnectionNotFound      = errors.New("connection_not_found")
	ErrWebhookNotSupported     = errors.New("webhook_not_supported")
	ErrListingNotFound         = errors.New("listing not found")
)

// APIError carries the upstream HTTP status alongside the marketplace fault
// text so callers can classify rate limits and outages without re-parsing.
type APIError struct {
	Marketplace Type
	StatusCode  int
	Message     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Marketplace, e.StatusCode, e.Message)
}

// NewAPIError maps an HTTP status to the fault text the delisting error
// classifier expects.
func NewAPIError(marketplace Type, status int, body string) *APIError {
	message := faultText(status)
	if body != "" {
		message = message + ": " + body
	}
	return &APIError{Marketplace: marketplace, StatusCode: status, Message: message}
}

func faultText(status int) string {
	switch {
	case status == 401 || status == 403:
		return "authentication failed"
	case status == 404:
		return "listing not found"
	case status == 409:
		return "listing already ended"
	case status == 422:
		return "listing cannot be ended"
	case status == 429:
		return "rate limit exceeded"
	case status >= 500:
		return "api unavailable"
	default:
		return "request rejected"
	}
}
