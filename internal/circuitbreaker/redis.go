package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "crosslist:cb:"

const canExecuteScript = `
local reset = tonumber(ARGV[1])
local halfOpenMax = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "state", "failures", "last_failure", "half_open_attempts")
local state = data[1] or "closed"
local failures = tonumber(data[2]) or 0
local lastFailure = tonumber(data[3]) or 0
local attempts = tonumber(data[4]) or 0

local allowed = 1
if state == "open" then
  if now - lastFailure >= reset then
    state = "half-open"
    failures = 0
    attempts = 1
  else
    allowed = 0
  end
elseif state == "half-open" then
  if attempts >= halfOpenMax then
    allowed = 0
  else
    attempts = attempts + 1
  end
end

redis.call("HMSET", KEYS[1], "state", state, "failures", failures, "last_failure", lastFailure, "half_open_attempts", attempts)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, state}
`

const recordSuccessScript = `
local ttl = tonumber(ARGV[1])
redis.call("HMSET", KEYS[1], "state", "closed", "failures", 0, "half_open_attempts", 0)
redis.call("PEXPIRE", KEYS[1], ttl)
return 1
`

const recordFailureScript = `
local threshold = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "state", "failures")
local state = data[1] or "closed"
local failures = tonumber(data[2]) or 0

if state == "half-open" then
  state = "open"
elseif state == "closed" then
  failures = failures + 1
  if failures >= threshold then
    state = "open"
  end
end

redis.call("HMSET", KEYS[1], "state", state, "failures", failures, "last_failure", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {state, failures}
`

// RedisBreaker shares breaker state across instances through lua-scripted
// atomic transitions, so every instance observes the same open/closed view.
type RedisBreaker struct {
	client     *redis.Client
	cfg        Config
	canExecute *redis.Script
	success    *redis.Script
	failure    *redis.Script
}

func NewRedisBreaker(cfg Config, client *redis.Client) (*RedisBreaker, error) {
	if client == nil {
		return nil, errors.New("redis breaker requires a client")
	}
	return &RedisBreaker{
		client:     client,
		cfg:        cfg.withDefaults(),
		canExecute: redis.NewScript(canExecuteScript),
		success:    redis.NewScript(recordSuccessScript),
		failure:    redis.NewScript(recordFailureScript),
	}, nil
}

func (b *RedisBreaker) ttlMillis() int64 {
	return int64((b.cfg.ResetTimeout * 4).Milliseconds())
}

func (b *RedisBreaker) CanExecute(ctx context.Context, key string) (bool, error) {
	res, err := b.canExecute.Run(ctx, b.client, []string{keyPrefix + key},
		b.cfg.ResetTimeout.Milliseconds(),
		b.cfg.HalfOpenMaxAttempts,
		b.ttlMillis(),
	).Slice()
	if err != nil {
		return false, err
	}
	if len(res) < 1 {
		return false, fmt.Errorf("invalid breaker script response")
	}
	allowed, _ := res[0].(int64)
	return allowed == 1, nil
}

func (b *RedisBreaker) RecordSuccess(ctx context.Context, key string) error {
	return b.success.Run(ctx, b.client, []string{keyPrefix + key}, b.ttlMillis()).Err()
}

func (b *RedisBreaker) RecordFailure(ctx context.Context, key string) error {
	return b.failure.Run(ctx, b.client, []string{keyPrefix + key},
		b.cfg.FailureThreshold,
		b.ttlMillis(),
	).Err()
}

func (b *RedisBreaker) CurrentState(ctx context.Context, key string) (State, error) {
	value, err := b.client.HGet(ctx, keyPrefix+key, "state").Result()
	if errors.Is(err, redis.Nil) {
		return StateClosed, nil
	}
	if err != nil {
		return StateClosed, err
	}
	return State(value), nil
}
