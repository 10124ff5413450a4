// Package keys implements the API key management endpoints: issuance, listing,
// revocation, and the rate-limited verification endpoint. All handlers except
// verification run behind the gate, so key management is itself an
// authenticated API surface.
package keys

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qrgate/qrgate/internal/auth"
	"github.com/qrgate/qrgate/internal/config"
	"github.com/qrgate/qrgate/internal/db/models"
	"github.com/qrgate/qrgate/internal/db/repositories"
	"github.com/qrgate/qrgate/internal/middleware"
	"github.com/qrgate/qrgate/internal/ratelimit"
)

// KeyHandlers handles key management endpoints
type KeyHandlers struct {
	cfg       *config.Config
	keyRepo   *repositories.APIKeyRepository
	validator *auth.Validator
	limiter   *ratelimit.Limiter
}

// NewKeyHandlers creates a new KeyHandlers instance
func NewKeyHandlers(cfg *config.Config, keyRepo *repositories.APIKeyRepository, validator *auth.Validator, limiter *ratelimit.Limiter) *KeyHandlers {
	return &KeyHandlers{
		cfg:       cfg,
		keyRepo:   keyRepo,
		validator: validator,
		limiter:   limiter,
	}
}

// createKeyRequest is the issuance payload.
type createKeyRequest struct {
	Name          string `json:"name" binding:"required"`
	Environment   string `json:"environment"`
	ExpiresInDays int    `json:"expires_in_days"`
}

// CreateKeyHandler issues a new API key for the calling account.
// The full secret appears in this response exactly once and is never
// retrievable afterwards — only its digest is stored.
// POST /v1/keys
func (h *KeyHandlers) CreateKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := middleware.GetCaller(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req createKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		environment := req.Environment
		if environment != "testing" {
			environment = "production"
		}

		fullKey, keyHash, displayPrefix, err := auth.GenerateAPIKey(h.cfg.Auth.APIKeys.Prefix)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate key"})
			return
		}

		key := &models.APIKey{
			UserID:      caller.UserID,
			Name:        req.Name,
			KeyHash:     keyHash,
			KeyPrefix:   displayPrefix,
			Environment: environment,
		}
		if req.ExpiresInDays > 0 {
			expiresAt := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
			key.ExpiresAt = &expiresAt
		}

		if err := h.keyRepo.Create(c.Request.Context(), key); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create key"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"key":     fullKey, // shown once, never again
			"api_key": key,
		})
	}
}

// ListKeysHandler lists the calling account's keys, newest first. Hashes are
// never serialized; the display prefix is the only identifying fragment.
// GET /v1/keys
func (h *KeyHandlers) ListKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := middleware.GetCaller(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		keys, err := h.keyRepo.ListByUser(c.Request.Context(), caller.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list keys"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"api_keys": keys})
	}
}

// RevokeKeyHandler soft-deletes a key owned by the calling account. Revocation
// takes effect on the next validation; it cannot be undone.
// DELETE /v1/keys/:id
func (h *KeyHandlers) RevokeKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := middleware.GetCaller(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		revoked, err := h.keyRepo.Revoke(c.Request.Context(), c.Param("id"), caller.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke key"})
			return
		}
		if !revoked {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"revoked": true})
	}
}

// verifyKeyRequest is the verification payload.
type verifyKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// VerifyKeyHandler checks whether a candidate key currently validates, without
// consuming quota. The endpoint is brute-force-sensitive, so it sits behind a
// per-IP rolling-TTL limiter; a successful verification clears the attempt
// counter so legitimate callers are not locked out by their own earlier typos.
// POST /v1/keys/verify
func (h *KeyHandlers) VerifyKeyHandler() gin.HandlerFunc {
	rl := h.cfg.RateLimiting
	return func(c *gin.Context) {
		scope := "verify:ip:" + middleware.ClientIP(c)

		res := h.limiter.Check(c.Request.Context(), scope, rl.VerifyLimit, rl.VerifyWindow, ratelimit.ModeRollingTTL)
		if !res.Allowed {
			retryAfter := res.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", time.Unix(res.ResetAt, 0).UTC().Format(http.TimeFormat))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many verification attempts",
				"retry_after": retryAfter,
			})
			return
		}

		var req verifyKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
			return
		}

		caller, _, err := h.validator.Validate(c.Request.Context(), req.Key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed"})
			return
		}
		if caller == nil {
			c.JSON(http.StatusOK, gin.H{"valid": false})
			return
		}

		// Correct key: clear this IP's attempt counter immediately instead of
		// waiting out the window.
		h.limiter.Reset(c.Request.Context(), scope, rl.VerifyWindow, ratelimit.ModeRollingTTL)

		c.JSON(http.StatusOK, gin.H{
			"valid": true,
			"tier":  caller.Tier.Name,
		})
	}
}
