package main

import (
	"os"

	"github.com/gin-gonic/gin"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/internal/handlers"
	"github.com/studio-s/auth-service/internal/middleware"
	"github.com/studio-s/auth-service/pkg/logger"
	"github.com/studio-s/auth-service/pkg/response"
)

// A minimal resource service demonstrating the Tier-2 trust check: it
// accepts identity headers only on requests carrying the gateway key.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Init("backend", "info")
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Init("backend", cfg.Log.Level)

	if err := cfg.ValidateBackend(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.GinLogger(), logger.GinRecovery())

	r.GET("/health", handlers.Liveness("studio-s-backend"))

	api := r.Group("/api/v1")
	api.Use(middleware.GatewayTrust(cfg.Gateway.Secret), middleware.Identity())
	{
		api.GET("/profile", func(c *gin.Context) {
			response.Success(c, gin.H{
				"userId": middleware.GetUserID(c),
				"email":  middleware.GetEmail(c),
				"role":   middleware.GetRole(c),
			})
		})

		admin := api.Group("/admin")
		admin.Use(middleware.RequireRoles("owner", "manager"))
		{
			admin.GET("/ping", func(c *gin.Context) {
				response.Message(c, "pong")
			})
		}
	}

	addr := cfg.Server.Host + ":" + backendPort(cfg)
	logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("backend starting")
	if err := r.Run(addr); err != nil {
		logger.Fatalf("Failed to start backend: %v", err)
	}
}

func backendPort(cfg *config.Config) string {
	if port := os.Getenv("BACKEND_PORT"); port != "" {
		return port
	}
	return cfg.Server.Port
}
