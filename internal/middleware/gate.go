// gate.go implements the API key gate: every external API request passes
// through credential validation, the short-window rate limiter, and the
// monthly quota check before its handler runs. A deny at any stage
// short-circuits the pipeline; on success the usage counters are committed
// after the handler completes.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qrgate/qrgate/internal/auth"
	"github.com/qrgate/qrgate/internal/config"
	"github.com/qrgate/qrgate/internal/quota"
	"github.com/qrgate/qrgate/internal/ratelimit"
)

const (
	// DecisionKey is the gin.Context key under which the gate's Decision is stored.
	DecisionKey = "gate_decision"

	// CallerKey is the gin.Context key holding the validated *auth.Caller.
	CallerKey = "caller"
)

// Decision is the gate's verdict for one request, consumed by route handlers
// and usage endpoints. Caller is nil when authentication failed; RateLimit is
// nil when rate limiting is disabled.
type Decision struct {
	Caller          *auth.Caller      `json:"caller,omitempty"`
	RateLimit       *ratelimit.Result `json:"rate_limit,omitempty"`
	MonthlyExceeded bool              `json:"monthly_exceeded"`
}

// Gate bundles the three enforcement stages with their configuration.
type Gate struct {
	validator *auth.Validator
	limiter   *ratelimit.Limiter
	quota     *quota.Tracker
	cfg       config.RateLimitingConfig
}

// NewGate creates a Gate.
func NewGate(validator *auth.Validator, limiter *ratelimit.Limiter, tracker *quota.Tracker, cfg config.RateLimitingConfig) *Gate {
	return &Gate{
		validator: validator,
		limiter:   limiter,
		quota:     tracker,
		cfg:       cfg,
	}
}

// Middleware returns the Gin handler enforcing the full gate pipeline:
// Credential Validator → Rate Limiter (fixed per-minute window, scoped by key
// hash) → Quota Tracker (monthly window) → handler → usage commit on success.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extraction failures collapse into an empty token so the validator
		// classifies (and counts) them as malformed like any other bad shape.
		token, _ := auth.ExtractBearer(c.GetHeader("Authorization"))

		caller, reason, err := g.validator.Validate(c.Request.Context(), token)
		if err != nil {
			slog.Error("gate: credential validation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}
		if caller == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": denyMessage(reason),
			})
			return
		}

		decision := &Decision{Caller: caller}

		if g.cfg.Enabled {
			res := g.limiter.Check(c.Request.Context(), "key:"+caller.KeyHash,
				g.cfg.RequestsPerMinute, time.Minute, ratelimit.ModeFixedWindow)
			decision.RateLimit = &res

			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt, 10))

			if !res.Allowed {
				retryAfter := res.ResetAt - time.Now().Unix()
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":       "Rate limit exceeded",
					"retry_after": retryAfter,
				})
				return
			}
		}

		if g.quota.CheckMonthly(c.Request.Context(), caller.KeyHash, caller.Tier, caller.MonthlyUsed) {
			decision.MonthlyExceeded = true
			c.Set(DecisionKey, decision)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Monthly request quota exceeded",
				"tier":  caller.Tier.Name,
				"limit": caller.Tier.MonthlyRequestLimit,
			})
			return
		}

		c.Set(DecisionKey, decision)
		c.Set(CallerKey, caller)

		c.Next()

		// Commit usage only after the handler succeeded, so denied and failed
		// requests never count against quota.
		if c.Writer.Status() < http.StatusBadRequest {
			if err := g.quota.Commit(c.Request.Context(), caller.KeyHash); err != nil {
				slog.Error("gate: failed to commit usage", "key_id", caller.KeyID, "error", err)
			}
		}
	}
}

// denyMessage maps a validation failure to its client-facing message.
// Malformed and unknown tokens share one message so a response never reveals
// whether a guessed key exists; revocation and expiry are surfaced distinctly
// because they only occur for keys the caller legitimately held.
func denyMessage(reason auth.Reason) string {
	switch reason {
	case auth.ReasonRevoked:
		return "API key has been revoked"
	case auth.ReasonExpired:
		return "API key has expired"
	default:
		return "Invalid API key"
	}
}

// GetDecision retrieves the gate decision from a gin context, if present.
func GetDecision(c *gin.Context) (*Decision, bool) {
	v, ok := c.Get(DecisionKey)
	if !ok {
		return nil, false
	}
	d, ok := v.(*Decision)
	return d, ok
}

// GetCaller retrieves the validated caller from a gin context, if present.
func GetCaller(c *gin.Context) (*auth.Caller, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return nil, false
	}
	caller, ok := v.(*auth.Caller)
	return caller, ok
}
