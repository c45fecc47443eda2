package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
)

type ErrorCode string

const (
	CodeInvalidToken         ErrorCode = "INVALID_TOKEN"
	CodeListingNotFound      ErrorCode = "LISTING_NOT_FOUND"
	CodeListingAlreadyEnded  ErrorCode = "LISTING_ALREADY_ENDED"
	CodeListingCannotBeEnded ErrorCode = "LISTING_CANNOT_BE_ENDED"
	CodeRateLimited          ErrorCode = "RATE_LIMITED"
	CodeTimeout              ErrorCode = "TIMEOUT"
	CodeNetworkError         ErrorCode = "NETWORK_ERROR"
	CodeAPIUnavailable       ErrorCode = "API_UNAVAILABLE"
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeUnknownError         ErrorCode = "UNKNOWN_ERROR"
)

// DelistingError is the typed form of every marketplace fault. Adapter
// errors are never recorded verbatim; they pass through MapAdapterError
// first.
type DelistingError struct {
	Code       ErrorCode
	Message    string
	Permanent  bool
	RetryAfter time.Duration
}

func (e *DelistingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const rateLimitRetryAfter = 60 * time.Second

// MapAdapterError classifies an adapter fault into a DelistingError,
// pattern-matched on error content. Permanent codes are never retried.
func MapAdapterError(err error) *DelistingError {
	if err == nil {
		return nil
	}

	var delistErr *DelistingError
	if errors.As(err, &delistErr) {
		return delistErr
	}

	if errors.Is(err, marketplacedomain.ErrConnectionNotFound) {
		return &DelistingError{
			Code:      CodeInvalidToken,
			Message:   "no active marketplace connection",
			Permanent: true,
		}
	}
	if errors.Is(err, marketplacedomain.ErrInvalidConfig) || errors.Is(err, marketplacedomain.ErrAdapterNotFound) {
		return &DelistingError{
			Code:    CodeInternalError,
			Message: err.Error(),
		}
	}

	message := err.Error()
	lower := strings.ToLower(message)

	var apiErr *marketplacedomain.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &DelistingError{Code: CodeRateLimited, Message: message, RetryAfter: rateLimitRetryAfter}
		case apiErr.StatusCode >= 500:
			return &DelistingError{Code: CodeAPIUnavailable, Message: message}
		}
	}

	switch {
	case strings.Contains(lower, "authentication") || strings.Contains(lower, "unauthorized"):
		return &DelistingError{Code: CodeInvalidToken, Message: message, Permanent: true}
	case strings.Contains(lower, "not found") || strings.Contains(lower, "invalid listing"):
		return &DelistingError{Code: CodeListingNotFound, Message: message, Permanent: true}
	case strings.Contains(lower, "already ended") || strings.Contains(lower, "already sold"):
		return &DelistingError{Code: CodeListingAlreadyEnded, Message: message, Permanent: true}
	case strings.Contains(lower, "cannot be ended") || strings.Contains(lower, "not allowed"):
		return &DelistingError{Code: CodeListingCannotBeEnded, Message: message, Permanent: true}
	case strings.Contains(lower, "rate limit"):
		return &DelistingError{Code: CodeRateLimited, Message: message, RetryAfter: rateLimitRetryAfter}
	case isTimeoutError(err) || strings.Contains(lower, "timeout"):
		return &DelistingError{Code: CodeTimeout, Message: message}
	case isNetworkError(err) || strings.Contains(lower, "network"):
		return &DelistingError{Code: CodeNetworkError, Message: message}
	default:
		return &DelistingError{Code: CodeUnknownError, Message: message}
	}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// Operation-level precondition faults. These propagate to the caller;
// everything below them is contained in the job's error log.
var (
	ErrJobNotFound          = errors.New("delisting job not found")
	ErrJobNotPending        = errors.New("delisting job is not pending")
	ErrConfirmationRequired = errors.New("delisting job requires user confirmation")
	ErrJobNotDue            = errors.New("delisting job is not due yet")
	ErrJobNotOwned          = errors.New("delisting job does not belong to caller")
	ErrJobAlreadyConfirmed  = errors.New("delisting job already confirmed")
	ErrEventNotActionable   = errors.New("sale event is not actionable")
)
