package main

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/internal/middleware"
	"github.com/studio-s/auth-service/pkg/logger"
)

func newRouter(cfg *config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	return r
}

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, cfg *config.Config, svc *appServices) {
	r.Use(middleware.CORS(cfg.CORS.Origins))

	// Probes and key publication sit outside the gateway trust filter.
	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/.well-known/jwks.json", svc.jwksHandler.GetKeys)

	limitStore := rateLimitStore(cfg)
	authLimit := middleware.RateLimit(limitStore, middleware.RateLimitConfig{
		Max:            cfg.RateLimit.AuthMax,
		Window:         time.Duration(cfg.RateLimit.AuthWindowSec) * time.Second,
		KeyPrefix:      "rl:auth",
		SkipSuccessful: true,
		Message:        "Too many attempts, please try again later",
	})
	resetLimit := middleware.RateLimit(limitStore, middleware.RateLimitConfig{
		Max:       cfg.RateLimit.ResetMax,
		Window:    time.Duration(cfg.RateLimit.ResetWindowSec) * time.Second,
		KeyPrefix: "rl:reset",
		Message:   "Too many reset requests, please try again later",
	})

	api := r.Group("/api/v1")
	api.Use(middleware.GatewayTrust(cfg.Gateway.Secret))
	{
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authLimit, svc.authHandler.Signup)
			auth.POST("/login", authLimit, svc.authHandler.Login)
			auth.POST("/refresh", authLimit, svc.authHandler.Refresh)
			auth.POST("/logout", svc.authHandler.Logout)
			auth.POST("/forgot-password", resetLimit, svc.authHandler.ForgotPassword)
			auth.PATCH("/reset-password/:token", resetLimit, svc.authHandler.ResetPassword)

			protected := auth.Group("")
			protected.Use(middleware.AuthRequired(svc.tokens))
			{
				protected.GET("/me", svc.authHandler.Me)
				protected.PATCH("/update-password", svc.authHandler.UpdatePassword)
			}
		}
	}
}

func rateLimitStore(cfg *config.Config) middleware.WindowStore {
	if cfg.Redis.Enabled {
		client := newRedisClient(&cfg.Redis)
		if client != nil {
			return middleware.NewRedisWindowStore(client)
		}
	}
	return middleware.NewMemoryWindowStore()
}
