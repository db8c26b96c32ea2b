package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/middleware"
	"github.com/mindwell-app/authcore/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type BootstrapApp struct {
	config    config.Config
	providers map[string]config.OAuthProviderConfig
	services  Services
	rateLimit *middleware.RateLimitMiddleware
}

func NewBootstrapApp(config config.Config, providers map[string]config.OAuthProviderConfig) *BootstrapApp {
	return &BootstrapApp{
		config:    config,
		providers: providers,
	}
}

func (app *BootstrapApp) Setup() error {
	// Resolve provider secrets and defaults
	for id, provider := range app.providers {
		provider.ClientSecret = utils.GetSecret(provider.ClientSecret, provider.ClientSecretFile)
		provider.ClientSecretFile = ""

		if provider.RedirectURL == "" {
			provider.RedirectURL = app.config.AppURL + "/api/oauth/callback/" + id
		}

		if provider.Name == "" {
			if name, ok := config.OverrideProviders[id]; ok {
				provider.Name = name
			} else {
				provider.Name = utils.Capitalize(id)
			}
		}

		app.providers[id] = provider
	}

	// Services
	services, err := app.initServices()

	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	app.services = services

	// Suspicion store and rate limiting
	suspicionWindow := time.Duration(app.config.SuspicionWindow) * time.Second
	var suspicionStore middleware.SuspicionStore

	if app.config.RedisURL != "" {
		options, err := redis.ParseURL(app.config.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		suspicionStore = middleware.NewRedisSuspicionStore(suspicionWindow, redis.NewClient(options))
		log.Info().Msg("Using redis suspicion store")
	} else {
		suspicionStore = middleware.NewMemorySuspicionStore(suspicionWindow)
	}

	app.rateLimit = middleware.NewRateLimitMiddleware(middleware.RateLimitMiddlewareConfig{
		OAuthLimit:         app.config.OAuthRateLimit,
		APILimit:           app.config.APIRateLimit,
		Window:             time.Duration(app.config.RateLimitWindow) * time.Second,
		SuspicionThreshold: app.config.SuspicionThreshold,
	}, suspicionStore)

	// Setup router
	router, err := app.setupRouter()

	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	// Start cleanup routine
	log.Debug().Msg("Starting cleanup routine")
	go app.cleanup(suspicionStore)

	// Start server
	address := fmt.Sprintf("%s:%d", app.config.Address, app.config.Port)
	log.Info().Msgf("Starting server on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	return nil
}

// cleanup sweeps expired states, codes, tokens, blacklist entries, audit
// rows past retention, and stale rate-limit counters.
func (app *BootstrapApp) cleanup(suspicionStore middleware.SuspicionStore) {
	ticker := time.NewTicker(time.Duration(30) * time.Minute)
	defer ticker.Stop()
	ctx := context.Background()

	for ; true; <-ticker.C {
		log.Debug().Msg("Running periodic cleanup")

		if err := app.services.stateService.CleanupExpired(); err != nil {
			log.Error().Err(err).Msg("Failed to clean up expired states")
		}

		if err := app.services.ledgerService.CleanupExpired(); err != nil {
			log.Error().Err(err).Msg("Failed to clean up expired tokens")
		}

		if err := app.services.auditService.CleanupExpired(); err != nil {
			log.Error().Err(err).Msg("Failed to clean up old audit records")
		}

		if err := suspicionStore.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to sweep suspicion store")
		}

		app.rateLimit.Cleanup()
	}
}
