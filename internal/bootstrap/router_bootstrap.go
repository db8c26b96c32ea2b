package bootstrap

import (
	"fmt"
	"strings"

	"github.com/mindwell-app/authcore/internal/controller"
	"github.com/mindwell-app/authcore/internal/middleware"
	"github.com/mindwell-app/authcore/internal/utils"

	"github.com/gin-gonic/gin"
)

func (app *BootstrapApp) setupRouter() (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery())

	if len(app.config.TrustedProxies) > 0 {
		err := engine.SetTrustedProxies(utils.ParseCommaList(app.config.TrustedProxies))

		if err != nil {
			return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
		}
	}

	zerologMiddleware := middleware.NewZerologMiddleware()
	engine.Use(zerologMiddleware.Middleware())

	headersMiddleware := middleware.NewHeadersMiddleware()

	originMiddleware := middleware.NewOriginMiddleware(middleware.OriginMiddlewareConfig{
		AllowedOrigins: utils.ParseCommaList(app.config.AllowedOrigins),
	})

	authMiddleware := middleware.NewAuthMiddleware(app.services.sessionService, app.services.ledgerService)

	apiRouter := engine.Group("/api")
	apiRouter.Use(headersMiddleware.Middleware())
	apiRouter.Use(app.rateLimit.APIMiddleware())

	authController := controller.NewAuthController(controller.AuthControllerConfig{
		CookieDomain:       app.config.CookieDomain,
		SecureCookie:       app.config.SecureCookie,
		AccessTokenExpiry:  app.config.AccessTokenExpiry,
		RefreshTokenExpiry: app.config.RefreshTokenExpiry,
	}, apiRouter, app.services.credentialService, app.services.sessionService, app.services.auditService, app.services.databaseService.GetDatabase(), authMiddleware.Middleware())

	authController.SetupRoutes(originMiddleware.Middleware(), app.rateLimit.OAuthMiddleware())

	oauthController := controller.NewOAuthController(controller.OAuthControllerConfig{
		FrontendURL:        strings.TrimRight(app.config.FrontendURL, "/"),
		CookieDomain:       app.config.CookieDomain,
		SecureCookie:       app.config.SecureCookie,
		RefreshTokenExpiry: app.config.RefreshTokenExpiry,
	}, apiRouter, app.services.federationService, app.services.stateService, app.services.sessionService, app.services.auditService)

	// Initiation gets the origin guard, the stricter OAuth budget and the
	// optional bearer guard so link mode can see the caller's identity; the
	// callback route stays exempt
	oauthController.SetupRoutes(originMiddleware.Middleware(), app.rateLimit.OAuthMiddleware(), authMiddleware.OptionalMiddleware())

	healthController := controller.NewHealthController(apiRouter)
	healthController.SetupRoutes()

	return engine, nil
}
