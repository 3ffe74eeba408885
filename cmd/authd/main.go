package main

import (
	"os"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Init("authd", "info")
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Init("authd", cfg.Log.Level)

	// Refuse to serve with broken configuration.
	if err := cfg.ValidateAuthd(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	svc := bootstrap(cfg)
	defer svc.shutdown()

	r := newRouter(cfg)
	registerRoutes(r, cfg, svc)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("auth service starting")
	if err := r.Run(addr); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
