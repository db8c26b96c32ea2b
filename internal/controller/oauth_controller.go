package controller

import (
	"fmt"
	"net/http"

	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog/log"
)

type OAuthRequest struct {
	Provider string `uri:"provider" binding:"required"`
}

// CallbackQuery is what the frontend callback page receives on success. The
// access token is short lived and the redirect target is same-site over TLS,
// which is the only reason tokens ride in the query here.
type CallbackQuery struct {
	AccessToken string `url:"access_token"`
	CSRFToken   string `url:"csrf_token"`
	RedirectURI string `url:"redirect_uri,omitempty"`
	IsNewUser   bool   `url:"is_new_user,omitempty"`
}

type ErrorQuery struct {
	Error string `url:"error"`
}

type OAuthControllerConfig struct {
	FrontendURL        string
	CookieDomain       string
	SecureCookie       bool
	RefreshTokenExpiry int
}

type OAuthController struct {
	Config     OAuthControllerConfig
	Router     *gin.RouterGroup
	Federation *service.FederationService
	State      *service.StateService
	Session    *service.SessionService
	Audit      *service.AuditService
}

func NewOAuthController(config OAuthControllerConfig, router *gin.RouterGroup, federation *service.FederationService, state *service.StateService, session *service.SessionService, audit *service.AuditService) *OAuthController {
	return &OAuthController{
		Config:     config,
		Router:     router,
		Federation: federation,
		State:      state,
		Session:    session,
		Audit:      audit,
	}
}

// SetupRoutes mounts the two flow endpoints. The initiation route gets the
// origin and strict rate guards in the router bootstrap; the callback is
// exempt from the origin guard since the redirect comes from the provider.
func (controller *OAuthController) SetupRoutes(initiationGuards ...gin.HandlerFunc) {
	oauthGroup := controller.Router.Group("/oauth")
	urlHandlers := append(initiationGuards, controller.oauthURLHandler)
	oauthGroup.GET("/url/:provider", urlHandlers...)
	oauthGroup.GET("/callback/:provider", controller.oauthCallbackHandler)
}

func (controller *OAuthController) oauthURLHandler(c *gin.Context) {
	var req OAuthRequest

	if err := c.BindUri(&req); err != nil {
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	provider, exists := controller.Federation.GetProvider(req.Provider)
	if !exists {
		log.Warn().Msgf("OAuth provider not found: %s", req.Provider)
		c.JSON(404, gin.H{
			"status":  404,
			"message": "Not Found",
		})
		return
	}

	meta := requestMeta(c)

	// Link mode attaches the federated identity to the authenticated user
	// instead of signing in
	linkMode := c.Query("link") == "true"
	userID := ""

	if linkMode {
		claims, exists := c.Get("claims")
		if !exists {
			c.JSON(401, gin.H{
				"status":  401,
				"message": "Unauthorized",
			})
			return
		}
		userID = claims.(*service.AccessClaims).Subject
	}

	state, err := controller.State.CreateState(userID, req.Provider, c.Query("redirect_uri"), linkMode, meta)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create OAuth state")
		c.JSON(500, gin.H{
			"status":  500,
			"message": "Internal Server Error",
		})
		return
	}

	authURL := controller.Federation.BuildAuthorizationURL(provider, state.State, state.CodeVerifier, state.Nonce)

	c.JSON(200, gin.H{
		"status":  200,
		"message": "OK",
		"url":     authURL,
	})
}

func (controller *OAuthController) oauthCallbackHandler(c *gin.Context) {
	var req OAuthRequest

	if err := c.BindUri(&req); err != nil {
		controller.redirectError(c, "server_error")
		return
	}

	meta := requestMeta(c)

	if providerError := c.Query("error"); providerError != "" {
		// Never surface the provider's own error text
		log.Warn().Str("provider", req.Provider).Str("error", providerError).Msg("Provider returned an error on callback")
		controller.Audit.Record(service.AuditFederationError, "", meta, map[string]any{
			"provider": req.Provider,
			"reason":   "provider_error",
		})
		controller.redirectError(c, "server_error")
		return
	}

	state, err := controller.State.ConsumeState(c.Query("state"))
	if err != nil {
		log.Warn().Err(err).Str("ip", meta.IP).Msg("OAuth state rejected")
		controller.Audit.Record(service.AuditStateRejected, "", meta, map[string]any{
			"provider": req.Provider,
		})
		controller.redirectError(c, "invalid_state")
		return
	}

	if state.Provider != req.Provider {
		controller.Audit.Record(service.AuditStateRejected, "", meta, map[string]any{
			"provider": req.Provider,
			"reason":   "provider_mismatch",
		})
		controller.redirectError(c, "invalid_state")
		return
	}

	provider, exists := controller.Federation.GetProvider(req.Provider)
	if !exists {
		controller.redirectError(c, "invalid_state")
		return
	}

	rawIDToken, err := controller.Federation.ExchangeCode(c.Request.Context(), provider, c.Query("code"), state.CodeVerifier)
	if err != nil {
		controller.Audit.Record(service.AuditFederationError, "", meta, map[string]any{
			"provider": req.Provider,
			"reason":   "exchange_failed",
		})
		controller.redirectError(c, "invalid_grant")
		return
	}

	claims, err := controller.Federation.ValidateIDToken(c.Request.Context(), provider, rawIDToken, state.Nonce)
	if err != nil {
		controller.Audit.Record(service.AuditFederationError, "", meta, map[string]any{
			"provider": req.Provider,
			"reason":   "id_token_validation_failed",
		})
		controller.redirectError(c, "unauthorized_client")
		return
	}

	linkUserID := ""
	if state.LinkMode {
		linkUserID = state.UserID
	}

	user, isNewUser, err := controller.Federation.MapToLocalUser(claims, linkUserID)
	if err != nil {
		log.Error().Err(err).Str("provider", req.Provider).Msg("Failed to map federated identity to local user")
		controller.redirectError(c, "server_error")
		return
	}

	result, err := controller.Session.IssueSession(user, meta)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue session")
		controller.redirectError(c, "server_error")
		return
	}
	result.IsNewUser = isNewUser

	action := service.AuditLoginSuccess
	if state.LinkMode {
		action = service.AuditAccountLinked
	}
	controller.Audit.Record(action, user.ID, meta, map[string]any{
		"provider": req.Provider,
	})

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(config.RefreshTokenCookieName, result.RefreshToken, controller.Config.RefreshTokenExpiry, "/api/auth", controller.Config.CookieDomain, controller.Config.SecureCookie, true)

	queries, err := query.Values(CallbackQuery{
		AccessToken: result.AccessToken,
		CSRFToken:   result.CSRFToken,
		RedirectURI: state.RedirectURL,
		IsNewUser:   isNewUser,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode callback query")
		controller.redirectError(c, "server_error")
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, fmt.Sprintf("%s/auth/callback?%s", controller.Config.FrontendURL, queries.Encode()))
}

func (controller *OAuthController) redirectError(c *gin.Context, code string) {
	queries, err := query.Values(ErrorQuery{Error: code})
	if err != nil {
		c.Redirect(http.StatusTemporaryRedirect, fmt.Sprintf("%s/auth/error", controller.Config.FrontendURL))
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, fmt.Sprintf("%s/auth/error?%s", controller.Config.FrontendURL, queries.Encode()))
}
