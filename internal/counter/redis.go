package counter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/qrgate/qrgate/internal/telemetry"
)

// RedisStoreConfig holds the health policy knobs for the Redis adapter.
type RedisStoreConfig struct {
	// Cooldown is how long the adapter refuses to touch Redis after a failure
	// before allowing a single re-probe.
	Cooldown time.Duration
	// OpTimeout bounds each individual Redis call so a hung store degrades a
	// request by at most this much before the fallback takes over.
	OpTimeout time.Duration
}

// DefaultRedisStoreConfig returns the recommended health policy.
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		Cooldown:  60 * time.Second,
		OpTimeout: 2 * time.Second,
	}
}

// RedisStore implements Store on top of a shared Redis instance. Every
// operation runs through a circuit breaker: the first transport failure opens
// the breaker, subsequent calls fail fast with ErrUnavailable without touching
// Redis, and after the cooldown a single probe is let through — success closes
// the breaker again.
//
// The client and breaker state are instance fields, so independent stores can
// coexist in one process (and in one test).
type RedisStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[int64]
	config  RedisStoreConfig
}

// NewRedisStore creates a RedisStore around an explicitly constructed client.
// The caller owns the client's connection settings (addr, auth, dial/read/write
// timeouts); the store owns the health policy.
func NewRedisStore(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultRedisStoreConfig().Cooldown
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultRedisStoreConfig().OpTimeout
	}

	settings := gobreaker.Settings{
		Name:        "counter-store",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Any transport failure marks the store unhealthy.
			return counts.ConsecutiveFailures >= 1
		},
		IsSuccessful: func(err error) bool {
			// A missing key is a normal answer, not a store failure.
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("counter store health change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	return &RedisStore{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[int64](settings),
		config:  cfg,
	}
}

// Healthy reports whether the adapter currently considers Redis usable.
func (s *RedisStore) Healthy() bool {
	return s.breaker.State() == gobreaker.StateClosed
}

// execute runs fn through the breaker with a bounded per-operation timeout and
// collapses every operational failure into ErrUnavailable. redis.Nil passes
// through untouched so callers can distinguish "missing key" from "store down".
func (s *RedisStore) execute(ctx context.Context, fn func(ctx context.Context) (int64, error)) (int64, error) {
	n, err := s.breaker.Execute(func() (int64, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
		defer cancel()
		return fn(opCtx)
	})
	if err == nil || errors.Is(err, redis.Nil) {
		return n, err
	}

	if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		slog.Warn("counter store operation failed", "error", err)
	}
	telemetry.CounterStoreFallbacksTotal.Inc()
	return 0, ErrUnavailable
}

// Increment atomically increments key via INCR and returns the new value.
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	return s.execute(ctx, func(ctx context.Context) (int64, error) {
		return s.client.Incr(ctx, key).Result()
	})
}

// Expire sets the key's TTL.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.execute(ctx, func(ctx context.Context) (int64, error) {
		return 0, s.client.Expire(ctx, key, ttl).Err()
	})
	return err
}

// Get returns the counter value and whether the key exists.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	n, err := s.execute(ctx, func(ctx context.Context) (int64, error) {
		return s.client.Get(ctx, key).Int64()
	})
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// TTL returns the remaining time-to-live for key, or NoExpiry when the key is
// absent or has no expiry set.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	n, err := s.execute(ctx, func(ctx context.Context) (int64, error) {
		d, err := s.client.TTL(ctx, key).Result()
		return int64(d), err
	})
	if err != nil {
		return 0, err
	}
	d := time.Duration(n)
	// Redis reports -1 (no expiry) and -2 (no key); both mean "no usable TTL".
	if d < 0 {
		return NoExpiry, nil
	}
	return d, nil
}

// Delete removes the key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.execute(ctx, func(ctx context.Context) (int64, error) {
		return 0, s.client.Del(ctx, key).Err()
	})
	return err
}

// Ping checks connectivity. A successful ping through the breaker also serves
// as the re-probe that clears the unhealthy state.
func (s *RedisStore) Ping(ctx context.Context) error {
	_, err := s.execute(ctx, func(ctx context.Context) (int64, error) {
		return 0, s.client.Ping(ctx).Err()
	})
	return err
}
