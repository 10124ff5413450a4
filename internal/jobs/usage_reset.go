// usage_reset.go implements the UsageResetJob background job, which zeroes the
// persisted monthly request counters at each calendar month boundary. The
// shared-store month-bucket counters expire on their own; this job keeps the
// durable columns (used by dashboards and as the quota fallback read) in step.
// The WHERE clause in the repository makes the reset idempotent, so running the
// job on every instance of a fleet is safe.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/qrgate/qrgate/internal/db/repositories"
)

// UsageResetJob periodically resets monthly usage counters whose last reset
// predates the current UTC calendar month.
type UsageResetJob struct {
	apiKeyRepo *repositories.APIKeyRepository
	interval   time.Duration
	stopChan   chan struct{}

	now func() time.Time
}

// NewUsageResetJob creates a new UsageResetJob. interval controls how often
// the boundary check runs (default 1h); the reset itself only takes effect in
// the first run of each new month.
func NewUsageResetJob(apiKeyRepo *repositories.APIKeyRepository, interval time.Duration) *UsageResetJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &UsageResetJob{
		apiKeyRepo: apiKeyRepo,
		interval:   interval,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start begins the background reset loop. It runs an initial check immediately,
// then repeats on the configured interval. The loop exits when ctx is cancelled
// or Stop() is called.
func (j *UsageResetJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("usage reset job started", "interval", j.interval)

	// Run once immediately on startup
	j.runReset(ctx)

	for {
		select {
		case <-ticker.C:
			j.runReset(ctx)
		case <-j.stopChan:
			slog.Info("usage reset job stopped")
			return
		case <-ctx.Done():
			slog.Info("usage reset job context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *UsageResetJob) Stop() {
	close(j.stopChan)
}

// runReset zeroes counters whose last reset predates the current UTC month.
func (j *UsageResetJob) runReset(ctx context.Context) {
	now := j.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reset, err := j.apiKeyRepo.ResetMonthlyUsage(opCtx, monthStart)
	if err != nil {
		slog.Error("usage reset job: reset failed", "error", err)
		return
	}
	if reset > 0 {
		slog.Info("usage reset job: monthly counters reset", "keys", reset, "month_start", monthStart)
	}
}
