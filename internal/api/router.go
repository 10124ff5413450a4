// Package api wires together all HTTP routes for the qrgate server.
//
// Route grouping philosophy:
//   - /healthz is unauthenticated so load balancers can probe it.
//   - /v1/keys/verify is unauthenticated by nature (the caller is asking
//     whether a credential works) but sits behind a strict per-IP rolling-TTL
//     limiter with reset-on-success.
//   - Everything else under /v1/ runs behind the gate: credential validation,
//     the per-key fixed-window limiter, and the monthly quota check, in that
//     order, with usage committed only after the handler succeeds.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/qrgate/qrgate/internal/api/keys"
	"github.com/qrgate/qrgate/internal/api/usage"
	"github.com/qrgate/qrgate/internal/auth"
	"github.com/qrgate/qrgate/internal/config"
	"github.com/qrgate/qrgate/internal/counter"
	"github.com/qrgate/qrgate/internal/db/repositories"
	"github.com/qrgate/qrgate/internal/jobs"
	"github.com/qrgate/qrgate/internal/middleware"
	"github.com/qrgate/qrgate/internal/quota"
	"github.com/qrgate/qrgate/internal/ratelimit"
	"github.com/qrgate/qrgate/internal/safego"
)

// BackgroundServices holds references to background goroutines and resources
// that must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() after the HTTP server has drained.
type BackgroundServices struct {
	usageResetJob *jobs.UsageResetJob
	memoryStore   *counter.MemoryStore
	redisClient   *redis.Client
}

// Shutdown stops all background goroutines and closes the Redis client.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.usageResetJob != nil {
		bg.usageResetJob.Stop()
	}
	if bg.memoryStore != nil {
		bg.memoryStore.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
}

// NewRouter builds the Gin engine with the full middleware chain and all
// routes, and starts the background jobs.
func NewRouter(cfg *config.Config, database *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())

	// Repositories
	keyRepo := repositories.NewAPIKeyRepository(database)
	profileRepo := repositories.NewProfileRepository(database)

	// Counter stores: the shared Redis store (when enabled) plus the
	// process-local fallback. Operators may run fallback-only by design.
	bg := &BackgroundServices{}

	var primary counter.Store
	var redisStore *counter.RedisStore
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		bg.redisClient = client

		redisStore = counter.NewRedisStore(client, counter.RedisStoreConfig{
			Cooldown:  cfg.Redis.HealthCooldown,
			OpTimeout: cfg.Redis.DialTimeout + cfg.Redis.ReadTimeout,
		})
		primary = redisStore
	} else {
		slog.Info("shared counter store disabled, running on in-process counters only")
	}

	memStore := counter.NewMemoryStore(time.Minute)
	bg.memoryStore = memStore

	limiter := ratelimit.New(primary, memStore)
	validator := auth.NewValidator(keyRepo, profileRepo, cfg.Auth.APIKeys.Prefix)
	tracker := quota.New(primary, keyRepo)
	gate := middleware.NewGate(validator, limiter, tracker, cfg.RateLimiting)

	// Handlers
	keyHandlers := keys.NewKeyHandlers(cfg, keyRepo, validator, limiter)
	usageHandlers := usage.NewUsageHandlers(keyRepo)

	// Health endpoint: degraded (not failing) when the shared store is down,
	// since the gate keeps working on the fallback counter.
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "down"})
			return
		}

		status := "ok"
		counterStore := "disabled"
		if redisStore != nil {
			counterStore = "ok"
			if !redisStore.Healthy() {
				counterStore = "unavailable"
				status = "degraded"
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": status, "counter_store": counterStore})
	})

	// Verification is deliberately outside the gate; it has its own limiter.
	router.POST("/v1/keys/verify", keyHandlers.VerifyKeyHandler())

	v1 := router.Group("/v1")
	v1.Use(gate.Middleware())
	{
		v1.GET("/usage", usageHandlers.GetUsageHandler())
		v1.POST("/keys", keyHandlers.CreateKeyHandler())
		v1.GET("/keys", keyHandlers.ListKeysHandler())
		v1.DELETE("/keys/:id", keyHandlers.RevokeKeyHandler())
	}

	// Background jobs
	bg.usageResetJob = jobs.NewUsageResetJob(keyRepo, cfg.Jobs.UsageResetInterval)
	safego.Go(func() {
		bg.usageResetJob.Start(context.Background())
	})

	return router, bg, nil
}
