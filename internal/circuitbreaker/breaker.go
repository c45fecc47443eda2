package circuitbreaker

import (
	"context"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config tunes one breaker instance. Defaults match the pipeline's
// external-API protection: trip after 5 consecutive failures, probe again
// after 60s, allow 3 half-open attempts.
type Config struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		ResetTimeout:        60 * time.Second,
		HalfOpenMaxAttempts: 3,
	}
}

func (c Config) withDefaults() Config {
	out := c
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = 5
	}
	if out.ResetTimeout <= 0 {
		out.ResetTimeout = 60 * time.Second
	}
	if out.HalfOpenMaxAttempts <= 0 {
		out.HalfOpenMaxAttempts = 3
	}
	return out
}

// Breaker gates calls to a degraded dependency, keyed per marketplace or
// per marketplace+operation (e.g. "polling:mercari"). The state is advisory:
// a denied call means back off, not that the operation is invalid.
type Breaker interface {
	CanExecute(ctx context.Context, key string) (bool, error)
	RecordSuccess(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string) error
	CurrentState(ctx context.Context, key string) (State, error)
}

// PollKey names the breaker scope for one marketplace's polling sweeps.
func PollKey(marketplace string) string {
	return "polling:" + marketplace
}

// DelistKey names the breaker scope for one marketplace's delist calls.
func DelistKey(marketplace string) string {
	return "delisting:" + marketplace
}
