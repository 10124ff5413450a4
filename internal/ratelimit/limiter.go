// Package ratelimit implements the short-window request limiter used by the
// API gate. One configurable component serves both addressing schemes: a
// fixed per-window bucket for API traffic shaping, and a rolling TTL window
// for brute-force-sensitive actions. Counters live in the shared Redis store
// when it is healthy and in the process-local fallback otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/qrgate/qrgate/internal/counter"
	"github.com/qrgate/qrgate/internal/telemetry"
)

// Mode selects the counter addressing scheme.
type Mode int

const (
	// ModeFixedWindow divides time into equal window-sized slices; all requests
	// inside one slice share a counter that resets at the slice boundary.
	ModeFixedWindow Mode = iota

	// ModeRollingTTL uses a single counter per scope whose expiry is set once,
	// on first use, to now+window. The reset time does not slide forward on
	// subsequent hits.
	ModeRollingTTL
)

// Backing store labels reported in Result.Source.
const (
	SourceRedis  = "redis"
	SourceMemory = "memory"
)

// Result is the verdict of a single rate limit check.
type Result struct {
	Allowed bool `json:"allowed"`
	Limit   int  `json:"limit"`
	// Remaining is how many further requests the window admits; 0 on denial.
	Remaining int `json:"remaining"`
	// ResetAt is the epoch-seconds timestamp at which the window resets, valid
	// on both allow and deny so clients can compute a retry-after hint.
	ResetAt int64 `json:"reset_at"`
	// Source names the store that served the answer: "redis" or "memory".
	Source string `json:"source"`
}

// Limiter composes the shared counter store and the local fallback into a
// single decision function.
type Limiter struct {
	// primary is the shared store; nil when the operator runs fallback-only.
	primary  counter.Store
	fallback counter.Store

	// now is swappable for deterministic window-boundary tests.
	now func() time.Time
}

// New creates a Limiter. primary may be nil to run entirely on the fallback;
// fallback must never be nil.
func New(primary, fallback counter.Store) *Limiter {
	return &Limiter{
		primary:  primary,
		fallback: fallback,
		now:      time.Now,
	}
}

// Check atomically counts one request against scope and returns the verdict.
// The request that reaches the limit exactly is still allowed; the first one
// past it is denied. Any shared-store failure repeats the check against the
// local fallback and tags the result Source="memory".
func (l *Limiter) Check(ctx context.Context, scope string, limit int, window time.Duration, mode Mode) Result {
	if l.primary != nil {
		res, err := l.checkWith(ctx, l.primary, scope, limit, window, mode)
		if err == nil {
			res.Source = SourceRedis
			observe(res)
			return res
		}
	}

	// The fallback is in-process and cannot fail.
	res, _ := l.checkWith(ctx, l.fallback, scope, limit, window, mode)
	res.Source = SourceMemory
	observe(res)
	return res
}

// Reset unconditionally deletes the scope's counter in both stores, so the
// window does not need to be waited out (e.g. clearing verification-attempt
// counters after a success). Store failures are ignored: the counter will
// expire on its own.
func (l *Limiter) Reset(ctx context.Context, scope string, window time.Duration, mode Mode) {
	key := l.key(scope, window, mode)
	if l.primary != nil {
		_ = l.primary.Delete(ctx, key)
	}
	_ = l.fallback.Delete(ctx, key)
}

// key computes the store key for scope under the chosen addressing mode.
func (l *Limiter) key(scope string, window time.Duration, mode Mode) string {
	if mode == ModeFixedWindow {
		bucket := l.now().UnixMilli() / window.Milliseconds()
		return fmt.Sprintf("ratelimit:%s:%d", scope, bucket)
	}
	return "ratelimit:" + scope
}

// checkWith runs the increment-and-decide algorithm against one store.
func (l *Limiter) checkWith(ctx context.Context, store counter.Store, scope string, limit int, window time.Duration, mode Mode) (Result, error) {
	key := l.key(scope, window, mode)

	count, err := store.Increment(ctx, key)
	if err != nil {
		return Result{}, err
	}

	var resetAt int64
	switch mode {
	case ModeFixedWindow:
		// The bucket boundary is arithmetic, not a TTL read: the counter key
		// already encodes which slice it belongs to. The expiry only garbage
		// collects the key; a second of slack keeps it alive through the
		// boundary so late stragglers in the same slice still share it.
		if count == 1 {
			if err := store.Expire(ctx, key, window+time.Second); err != nil {
				return Result{}, err
			}
		}
		bucket := l.now().UnixMilli() / window.Milliseconds()
		resetAt = time.UnixMilli((bucket + 1) * window.Milliseconds()).Unix()

	case ModeRollingTTL:
		// The expiry is set once, at creation, and fixed thereafter; the reset
		// time is read back from the remaining TTL.
		if count == 1 {
			if err := store.Expire(ctx, key, window); err != nil {
				return Result{}, err
			}
			resetAt = l.now().Add(window).Unix()
		} else {
			ttl, err := store.TTL(ctx, key)
			if err != nil {
				return Result{}, err
			}
			if ttl < 0 {
				// The counter lost its expiry (e.g. the process died between
				// INCR and EXPIRE). Re-arm it rather than letting the scope
				// stay throttled forever.
				if err := store.Expire(ctx, key, window); err != nil {
					return Result{}, err
				}
				ttl = window
			}
			resetAt = l.now().Add(ttl).Unix()
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func observe(res Result) {
	outcome := "allowed"
	if !res.Allowed {
		outcome = "denied"
	}
	telemetry.RateLimitChecksTotal.WithLabelValues(res.Source, outcome).Inc()
}
