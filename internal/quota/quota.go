// Package quota enforces the per-tier monthly request ceiling. It is distinct
// from the short-window rate limiter: the limiter stops bursts, the quota
// tracker stops sustained overuse across a calendar month.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qrgate/qrgate/internal/counter"
	"github.com/qrgate/qrgate/internal/db/repositories"
	"github.com/qrgate/qrgate/internal/telemetry"
	"github.com/qrgate/qrgate/internal/tiers"
)

// Tracker reads and commits monthly usage counters. The authoritative
// cross-instance count lives in the shared store under a month-scoped key that
// expires on its own at the month boundary; the durable columns on the
// credential row are kept in step by Commit and serve as the fallback read
// when the store is down.
type Tracker struct {
	// store is the shared counter store; nil when the operator runs without one.
	store counter.Store
	keys  *repositories.APIKeyRepository

	now func() time.Time
}

// New creates a Tracker. store may be nil.
func New(store counter.Store, keys *repositories.APIKeyRepository) *Tracker {
	return &Tracker{
		store: store,
		keys:  keys,
		now:   time.Now,
	}
}

// CheckMonthly reports whether the caller's monthly ceiling is already
// exhausted. storedCount is the persisted monthly counter read during
// validation; it is the (slightly stale) answer when the shared store is
// unavailable. An unlimited tier never touches the store and never exceeds.
func (t *Tracker) CheckMonthly(ctx context.Context, keyHash string, tier tiers.Tier, storedCount int64) bool {
	if tier.IsUnlimited() {
		return false
	}

	used := storedCount
	if t.store != nil {
		count, ok, err := t.store.Get(ctx, t.monthKey(keyHash))
		if err == nil {
			if !ok {
				count = 0
			}
			used = count
		}
	}

	exceeded := used >= tier.MonthlyRequestLimit
	if exceeded {
		telemetry.QuotaExceededTotal.Inc()
	}
	return exceeded
}

// Commit records one successfully processed request: it increments the shared
// month counter and the durable per-key columns. Callers invoke it only after
// the protected handler succeeds, so denied or failed requests never count.
func (t *Tracker) Commit(ctx context.Context, keyHash string) error {
	if t.store != nil {
		key := t.monthKey(keyHash)
		n, err := t.store.Increment(ctx, key)
		if err != nil {
			// Absorbed: the durable columns below still advance, and the month
			// key will be rebuilt from zero once the store recovers — an
			// undercount for the remainder of the month, matching the accepted
			// fail-open degradation.
			slog.Warn("quota commit: shared store unavailable", "error", err)
		} else if n == 1 {
			if err := t.store.Expire(ctx, key, t.untilNextMonth()); err != nil {
				slog.Warn("quota commit: failed to set month key expiry", "error", err)
			}
		}
	}

	if err := t.keys.CommitUsage(ctx, keyHash); err != nil {
		return fmt.Errorf("failed to commit usage counters: %w", err)
	}
	return nil
}

// monthKey scopes a counter to (keyHash, calendar month) in UTC, so counters
// roll over implicitly at month boundaries without an explicit reset job.
func (t *Tracker) monthKey(keyHash string) string {
	return fmt.Sprintf("quota:%s:%s", keyHash, t.now().UTC().Format("2006-01"))
}

// untilNextMonth returns the duration to the first moment of the next UTC
// calendar month.
func (t *Tracker) untilNextMonth() time.Duration {
	now := t.now().UTC()
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}
