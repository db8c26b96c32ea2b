package bootstrap

import (
	"fmt"

	"github.com/mindwell-app/authcore/internal/service"
	"github.com/mindwell-app/authcore/internal/utils"
)

type Services struct {
	databaseService   *service.DatabaseService
	stateService      *service.StateService
	ledgerService     *service.LedgerService
	credentialService *service.CredentialService
	sessionService    *service.SessionService
	jwksService       *service.JWKSService
	federationService *service.FederationService
	auditService      *service.AuditService
}

func (app *BootstrapApp) initServices() (Services, error) {
	services := Services{}

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: app.config.DatabasePath,
	})

	if err := databaseService.Init(); err != nil {
		return Services{}, fmt.Errorf("failed to initialize database: %w", err)
	}

	services.databaseService = databaseService
	database := databaseService.GetDatabase()

	services.stateService = service.NewStateService(service.StateServiceConfig{
		StateExpiry:    app.config.StateExpiry,
		AuthCodeExpiry: app.config.AuthCodeExpiry,
	}, database)

	services.ledgerService = service.NewLedgerService(service.LedgerServiceConfig{
		RefreshTokenExpiry: app.config.RefreshTokenExpiry,
	}, database)

	services.credentialService = service.NewCredentialService(database)

	jwtSecret := utils.GetSecret(app.config.JWTSecret, app.config.JWTSecretFile)
	if jwtSecret == "" {
		return Services{}, fmt.Errorf("no JWT signing secret configured")
	}

	services.sessionService = service.NewSessionService(service.SessionServiceConfig{
		JWTSecret:         jwtSecret,
		Issuer:            app.config.Issuer,
		AccessTokenExpiry: app.config.AccessTokenExpiry,
	}, services.ledgerService, database)

	services.jwksService = service.NewJWKSService(service.JWKSServiceConfig{
		CacheExpiry: app.config.JWKSCacheExpiry,
		Timeout:     app.config.ProviderTimeout,
	})

	services.federationService = service.NewFederationService(service.FederationServiceConfig{
		Providers:       app.providers,
		ProviderTimeout: app.config.ProviderTimeout,
	}, services.jwksService, database)

	if err := services.federationService.Init(); err != nil {
		return Services{}, fmt.Errorf("failed to initialize identity providers: %w", err)
	}

	services.auditService = service.NewAuditService(service.AuditServiceConfig{
		RetentionDays: app.config.AuditRetentionDays,
	}, database)

	return services, nil
}
