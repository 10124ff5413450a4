// Package usage implements the usage reporting endpoint, giving API callers a
// view of their own consumption against their tier's ceilings.
package usage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qrgate/qrgate/internal/db/repositories"
	"github.com/qrgate/qrgate/internal/middleware"
)

// UsageHandlers handles usage reporting endpoints
type UsageHandlers struct {
	keyRepo *repositories.APIKeyRepository
}

// NewUsageHandlers creates a new UsageHandlers instance
func NewUsageHandlers(keyRepo *repositories.APIKeyRepository) *UsageHandlers {
	return &UsageHandlers{keyRepo: keyRepo}
}

// GetUsageHandler reports the calling key's lifetime and monthly request
// counts, the tier ceilings, and the short-window rate limit state from this
// request's gate decision.
// GET /v1/usage
func (h *UsageHandlers) GetUsageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := middleware.GetCaller(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		key, err := h.keyRepo.GetByID(c.Request.Context(), caller.KeyID)
		if err != nil || key == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage"})
			return
		}

		payload := gin.H{
			"key_prefix":            key.KeyPrefix,
			"environment":           key.Environment,
			"request_count":         key.RequestCount,
			"monthly_request_count": key.MonthlyRequestCount,
			"tier":                  caller.Tier,
			"last_used_at":          key.LastUsedAt,
		}

		if decision, ok := middleware.GetDecision(c); ok && decision.RateLimit != nil {
			payload["rate_limit"] = decision.RateLimit
		}

		c.JSON(http.StatusOK, payload)
	}
}
