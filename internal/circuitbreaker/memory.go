package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/observability/metrics"
	"go.uber.org/zap"
)

type entry struct {
	state            State
	failures         int
	lastFailureTime  time.Time
	halfOpenAttempts int
}

// MemoryBreaker keeps breaker state in-process. In a multi-instance
// deployment each instance degrades independently; use the redis breaker
// when the state must be shared.
type MemoryBreaker struct {
	mu      sync.Mutex
	cfg     Config
	clock   clock.Clock
	log     *zap.Logger
	entries map[string]*entry
}

func NewMemoryBreaker(cfg Config, clk clock.Clock, log *zap.Logger) *MemoryBreaker {
	return &MemoryBreaker{
		cfg:     cfg.withDefaults(),
		clock:   clk,
		log:     log.Named("circuitbreaker"),
		entries: map[string]*entry{},
	}
}

func (b *MemoryBreaker) CanExecute(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(key)
	switch e.state {
	case StateClosed:
		return true, nil
	case StateOpen:
		if b.clock.Now().Sub(e.lastFailureTime) < b.cfg.ResetTimeout {
			return false, nil
		}
		b.transition(key, e, StateHalfOpen)
		e.failures = 0
		e.halfOpenAttempts = 0
		fallthrough
	case StateHalfOpen:
		if e.halfOpenAttempts >= b.cfg.HalfOpenMaxAttempts {
			return false, nil
		}
		e.halfOpenAttempts++
		return true, nil
	default:
		return true, nil
	}
}

func (b *MemoryBreaker) RecordSuccess(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(key)
	if e.state != StateClosed {
		b.transition(key, e, StateClosed)
	}
	e.failures = 0
	e.halfOpenAttempts = 0
	return nil
}

func (b *MemoryBreaker) RecordFailure(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(key)
	now := b.clock.Now()
	switch e.state {
	case StateHalfOpen:
		e.lastFailureTime = now
		b.transition(key, e, StateOpen)
	case StateClosed:
		e.failures++
		e.lastFailureTime = now
		if e.failures >= b.cfg.FailureThreshold {
			b.transition(key, e, StateOpen)
		}
	case StateOpen:
		e.lastFailureTime = now
	}
	return nil
}

func (b *MemoryBreaker) CurrentState(ctx context.Context, key string) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(key).state, nil
}

func (b *MemoryBreaker) entry(key string) *entry {
	e, ok := b.entries[key]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[key] = e
	}
	return e
}

func (b *MemoryBreaker) transition(key string, e *entry, next State) {
	if e.state == next {
		return
	}
	b.log.Info("circuit breaker transition",
		zap.String("key", key),
		zap.String("from", string(e.state)),
		zap.String("to", string(next)),
		zap.Int("failures", e.failures),
	)
	metrics.Pipeline().IncBreakerTransition(key, string(next))
	e.state = next
}
