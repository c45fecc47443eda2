package domain

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
)

func TestMapAdapterError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		code       ErrorCode
		permanent  bool
		retryAfter time.Duration
	}{
		{
			name:      "authentication failed",
			err:       errors.New("ebay: authentication failed"),
			code:      CodeInvalidToken,
			permanent: true,
		},
		{
			name:      "unauthorized",
			err:       errors.New("unauthorized request"),
			code:      CodeInvalidToken,
			permanent: true,
		},
		{
			name:      "listing not found",
			err:       errors.New("listing not found"),
			code:      CodeListingNotFound,
			permanent: true,
		},
		{
			name:      "already ended",
			err:       errors.New("listing already ended"),
			code:      CodeListingAlreadyEnded,
			permanent: true,
		},
		{
			name:      "cannot be ended",
			err:       errors.New("listing cannot be ended in its current state"),
			code:      CodeListingCannotBeEnded,
			permanent: true,
		},
		{
			name:       "rate limit text",
			err:        errors.New("rate limit exceeded"),
			code:       CodeRateLimited,
			retryAfter: 60 * time.Second,
		},
		{
			name: "timeout",
			err:  errors.New("request timeout"),
			code: CodeTimeout,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			code: CodeTimeout,
		},
		{
			name: "network op error",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			code: CodeNetworkError,
		},
		{
			name:       "api error 429",
			err:        marketplacedomain.NewAPIError(marketplacedomain.TypePoshmark, 429, `{"error":"slow down"}`),
			code:       CodeRateLimited,
			retryAfter: 60 * time.Second,
		},
		{
			name: "api error 503",
			err:  marketplacedomain.NewAPIError(marketplacedomain.TypeEbay, 503, "bad gateway"),
			code: CodeAPIUnavailable,
		},
		{
			name:      "missing connection",
			err:       marketplacedomain.ErrConnectionNotFound,
			code:      CodeInvalidToken,
			permanent: true,
		},
		{
			name: "adapter misconfigured",
			err:  marketplacedomain.ErrInvalidConfig,
			code: CodeInternalError,
		},
		{
			name: "anything else",
			err:  errors.New("weird response shape"),
			code: CodeUnknownError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapAdapterError(tc.err)
			if mapped == nil {
				t.Fatal("expected a mapped error")
			}
			if mapped.Code != tc.code {
				t.Fatalf("code = %s, want %s", mapped.Code, tc.code)
			}
			if mapped.Permanent != tc.permanent {
				t.Fatalf("permanent = %v, want %v", mapped.Permanent, tc.permanent)
			}
			if mapped.RetryAfter != tc.retryAfter {
				t.Fatalf("retryAfter = %s, want %s", mapped.RetryAfter, tc.retryAfter)
			}
		})
	}
}

func TestMapAdapterErrorNil(t *testing.T) {
	if got := MapAdapterError(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestMapAdapterErrorPassthrough(t *testing.T) {
	original := &DelistingError{Code: CodeRateLimited, Message: "slow down", RetryAfter: 120 * time.Second}
	mapped := MapAdapterError(original)
	if mapped != original {
		t.Fatal("expected DelistingError to pass through unchanged")
	}
}
