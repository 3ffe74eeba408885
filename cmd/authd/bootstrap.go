package main

import (
	"time"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/internal/handlers"
	"github.com/studio-s/auth-service/internal/models"
	"github.com/studio-s/auth-service/internal/security"
	"github.com/studio-s/auth-service/internal/services"
	"github.com/studio-s/auth-service/pkg/logger"
)

// appServices holds the initialized dependencies of the auth service.
type appServices struct {
	keys        *security.KeyProvider
	tokens      *security.TokenProvider
	store       *services.GormSessionStore
	authService *services.AuthService
	events      services.EventQueue
	worker      *services.Worker
	cleanup     *services.CleanupScheduler

	authHandler   *handlers.AuthHandler
	jwksHandler   *handlers.JWKSHandler
	healthHandler *handlers.HealthHandler
}

// bootstrap wires database, keys, queues and schedulers.
func bootstrap(cfg *config.Config) *appServices {
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	keys, err := security.LoadKeyProvider(cfg.JWT.PrivateKeyPEM, cfg.JWT.KeyID)
	if err != nil {
		logger.Fatalf("Failed to load signing key: %v", err)
	}
	if cfg.JWT.PrivateKeyPEM == "" {
		logger.Warn().Msg("no signing key configured, using an ephemeral dev key")
	}

	tokens := security.NewTokenProvider(keys,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		time.Duration(cfg.JWT.AccessTTLSec)*time.Second,
		time.Duration(cfg.JWT.RefreshTTLSec)*time.Second,
	)

	events := services.NewEventQueue(cfg, db)

	var worker *services.Worker
	if events.IsAsync() {
		worker = services.NewWorker(&cfg.Redis, services.NewEventRecorder(db))
		if worker != nil {
			if err := worker.Start(); err != nil {
				logger.Fatalf("Failed to start security-event worker: %v", err)
			}
		}
	}

	store := services.NewGormSessionStore(db)
	authService := services.NewAuthService(db, store, tokens, events)
	emailService := services.NewEmailService(&cfg.SMTP)

	cleanup := services.NewCleanupScheduler(store, events)
	if err := cleanup.Start(); err != nil {
		logger.Fatalf("Failed to start cleanup scheduler: %v", err)
	}

	return &appServices{
		keys:          keys,
		tokens:        tokens,
		store:         store,
		authService:   authService,
		events:        events,
		worker:        worker,
		cleanup:       cleanup,
		authHandler:   handlers.NewAuthHandler(authService, emailService, &cfg.Cookie),
		jwksHandler:   handlers.NewJWKSHandler(keys),
		healthHandler: handlers.NewHealthHandler(db, events),
	}
}

func (s *appServices) shutdown() {
	s.cleanup.Stop()
	if s.worker != nil {
		s.worker.Stop()
	}
	if err := s.events.Close(); err != nil {
		logger.Error().Err(err).Msg("event queue close failed")
	}
}
