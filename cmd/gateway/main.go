package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/internal/gateway"
	"github.com/studio-s/auth-service/internal/handlers"
	"github.com/studio-s/auth-service/internal/middleware"
	"github.com/studio-s/auth-service/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Init("gateway", "info")
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Init("gateway", cfg.Log.Level)

	if err := cfg.ValidateGateway(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	verifier := gateway.NewVerifier(gateway.VerifierConfig{
		JWKSURL:        cfg.Gateway.JWKSURL,
		Issuer:         cfg.JWT.Issuer,
		Audience:       cfg.JWT.Audience,
		CacheTTL:       time.Duration(cfg.Gateway.JWKSCacheTTLSec) * time.Second,
		FetchPerMinute: cfg.Gateway.JWKSPerMinute,
	})

	proxy, err := gateway.NewProxy(gateway.ProxyConfig{
		AuthServiceURL: cfg.Gateway.AuthServiceURL,
		BackendURL:     cfg.Gateway.BackendURL,
		Secret:         cfg.Gateway.Secret,
		Verifier:       verifier,
	})
	if err != nil {
		logger.Fatalf("Failed to build proxy: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(cfg.CORS.Origins))

	// The global limit protects upstreams from a single noisy client.
	// Disabled outside production to keep local iteration painless.
	if cfg.IsProduction() {
		r.Use(middleware.RateLimit(middleware.NewMemoryWindowStore(), middleware.RateLimitConfig{
			Max:       cfg.RateLimit.GlobalMax,
			Window:    time.Duration(cfg.RateLimit.GlobalWindowSec) * time.Second,
			KeyPrefix: "rl:global",
			Skip: func(c *gin.Context) bool {
				return c.Request.URL.Path == "/health"
			},
		}))
	}

	r.GET("/health", handlers.Liveness("studio-s-gateway"))

	// Auth endpoints pass through; everything else needs a verified
	// access token.
	r.Any("/api/v1/auth/*path", proxy.AuthHandler())
	r.NoRoute(proxy.BackendHandler())

	addr := cfg.Server.Host + ":" + gatewayPort(cfg)
	logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("gateway starting")
	if err := r.Run(addr); err != nil {
		logger.Fatalf("Failed to start gateway: %v", err)
	}
}

// gatewayPort lets GATEWAY_PORT override the shared server port so all
// three binaries can run from one config file.
func gatewayPort(cfg *config.Config) string {
	if port := os.Getenv("GATEWAY_PORT"); port != "" {
		return port
	}
	return cfg.Server.Port
}
