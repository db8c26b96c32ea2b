package controller

import (
	"errors"
	"net/http"

	"github.com/mindwell-app/authcore/internal/autherr"
	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/model"
	"github.com/mindwell-app/authcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthControllerConfig struct {
	CookieDomain       string
	SecureCookie       bool
	AccessTokenExpiry  int
	RefreshTokenExpiry int
}

type AuthController struct {
	Config     AuthControllerConfig
	Router     *gin.RouterGroup
	Credential *service.CredentialService
	Session    *service.SessionService
	Audit      *service.AuditService
	Database   *gorm.DB
	Guard      gin.HandlerFunc
}

func NewAuthController(config AuthControllerConfig, router *gin.RouterGroup, credential *service.CredentialService, session *service.SessionService, audit *service.AuditService, database *gorm.DB, guard gin.HandlerFunc) *AuthController {
	return &AuthController{
		Config:     config,
		Router:     router,
		Credential: credential,
		Session:    session,
		Audit:      audit,
		Database:   database,
		Guard:      guard,
	}
}

// SetupRoutes mounts the local-credential endpoints. Login is a
// flow-initiation endpoint and takes the same guards as the OAuth URL route.
func (controller *AuthController) SetupRoutes(initiationGuards ...gin.HandlerFunc) {
	authGroup := controller.Router.Group("/auth")
	loginHandlers := append(initiationGuards, controller.loginHandler)
	authGroup.POST("/login", loginHandlers...)
	authGroup.POST("/refresh", controller.refreshHandler)
	authGroup.POST("/logout", controller.logoutHandler)
	authGroup.GET("/profile", controller.Guard, controller.profileHandler)
}

func (controller *AuthController) loginHandler(c *gin.Context) {
	var req LoginRequest

	if err := c.BindJSON(&req); err != nil {
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	meta := requestMeta(c)

	user, err := controller.Credential.Validate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, autherr.ErrInvalidCredentials) {
			controller.Audit.Record(service.AuditLoginFailure, "", meta, map[string]any{
				"email":    req.Email,
				"provider": "local",
			})
			// Never distinguish unknown email from wrong password
			c.JSON(401, gin.H{
				"status":  401,
				"message": "Invalid email or password",
			})
			return
		}
		log.Error().Err(err).Msg("Credential validation failed")
		c.JSON(500, gin.H{
			"status":  500,
			"message": "Internal Server Error",
		})
		return
	}

	result, err := controller.Session.IssueSession(user, meta)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue session")
		c.JSON(500, gin.H{
			"status":  500,
			"message": "Internal Server Error",
		})
		return
	}

	controller.setSessionCookies(c, result)
	controller.Audit.Record(service.AuditLoginSuccess, user.ID, meta, map[string]any{
		"provider": "local",
	})

	c.JSON(200, gin.H{
		"status":      200,
		"message":     "OK",
		"accessToken": result.AccessToken,
		"csrfToken":   result.CSRFToken,
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
			"roles": user.Roles,
		},
	})
}

func (controller *AuthController) refreshHandler(c *gin.Context) {
	meta := requestMeta(c)

	refreshToken, err := c.Cookie(config.RefreshTokenCookieName)
	if err == nil && refreshToken != "" {
		// Cookie-sourced refresh is browser traffic and needs the CSRF
		// double submit, same as the bearer guard requires
		if !csrfMatches(c) {
			log.Warn().Str("ip", meta.IP).Msg("CSRF token mismatch on refresh")
			c.JSON(401, gin.H{
				"status":  401,
				"message": "Unauthorized",
				"code":    "csrf_mismatch",
			})
			return
		}
	} else {
		var req RefreshRequest
		if err := c.BindJSON(&req); err != nil || req.RefreshToken == "" {
			c.JSON(401, gin.H{
				"status":  401,
				"message": "Unauthorized",
				"code":    "missing_token",
			})
			return
		}
		refreshToken = req.RefreshToken
	}

	result, err := controller.Session.RefreshSession(c.Request.Context(), refreshToken, meta)
	if err != nil {
		switch {
		case errors.Is(err, autherr.ErrReuseDetected):
			// Compromise response, not an ordinary expiry: the client must
			// force a full re-login
			controller.Audit.Record(service.AuditReuseDetected, "", meta, nil)
			controller.clearSessionCookies(c)
			c.JSON(401, gin.H{
				"status":  401,
				"message": "Unauthorized",
				"code":    "reuse_detected",
			})
		case errors.Is(err, autherr.ErrTokenExpired):
			controller.clearSessionCookies(c)
			c.JSON(401, gin.H{
				"status":  401,
				"message": "Unauthorized",
				"code":    "token_expired",
			})
		case errors.Is(err, autherr.ErrInvalidToken):
			controller.clearSessionCookies(c)
			c.JSON(401, gin.H{
				"status":  401,
				"message": "Unauthorized",
				"code":    "invalid_token",
			})
		default:
			log.Error().Err(err).Msg("Failed to refresh session")
			c.JSON(500, gin.H{
				"status":  500,
				"message": "Internal Server Error",
			})
		}
		return
	}

	controller.setSessionCookies(c, result)
	controller.Audit.Record(service.AuditTokenRefresh, result.UserID, meta, nil)

	c.JSON(200, gin.H{
		"status":      200,
		"message":     "OK",
		"accessToken": result.AccessToken,
		"csrfToken":   result.CSRFToken,
	})
}

func (controller *AuthController) logoutHandler(c *gin.Context) {
	meta := requestMeta(c)

	var claims *service.AccessClaims
	bearer := false

	if header := c.GetHeader("Authorization"); len(header) > 7 && header[:7] == "Bearer " {
		bearer = true
		if parsed, err := controller.Session.ValidateAccessToken(header[7:]); err == nil {
			claims = parsed
		}
	} else if tokenString, err := c.Cookie(config.AccessTokenCookieName); err == nil && tokenString != "" {
		if parsed, err := controller.Session.ValidateAccessToken(tokenString); err == nil {
			claims = parsed
		}
	}

	refreshToken, _ := c.Cookie(config.RefreshTokenCookieName)
	accessCookie, _ := c.Cookie(config.AccessTokenCookieName)

	// Cookie-only logout revokes server-side state, so it needs the CSRF
	// double submit before anything is torn down
	if !bearer && (refreshToken != "" || accessCookie != "") && !csrfMatches(c) {
		log.Warn().Str("ip", meta.IP).Msg("CSRF token mismatch on logout")
		c.JSON(401, gin.H{
			"status":  401,
			"message": "Unauthorized",
			"code":    "csrf_mismatch",
		})
		return
	}

	if err := controller.Session.RevokeSession(claims, refreshToken, meta); err != nil {
		log.Error().Err(err).Msg("Failed to revoke session")
	}

	userID := ""
	if claims != nil {
		userID = claims.Subject
	}

	controller.clearSessionCookies(c)
	controller.Audit.Record(service.AuditLogout, userID, meta, nil)

	c.JSON(200, gin.H{
		"status":  200,
		"message": "OK",
	})
}

func (controller *AuthController) profileHandler(c *gin.Context) {
	claims, exists := c.Get("claims")
	if !exists {
		c.JSON(401, gin.H{
			"status":  401,
			"message": "Unauthorized",
		})
		return
	}

	accessClaims := claims.(*service.AccessClaims)

	var user model.User
	if err := controller.Database.Where("id = ?", accessClaims.Subject).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(401, gin.H{
				"status":  401,
				"message": "Unauthorized",
			})
			return
		}
		log.Error().Err(err).Msg("Failed to load user")
		c.JSON(500, gin.H{
			"status":  500,
			"message": "Internal Server Error",
		})
		return
	}

	controller.Audit.Record(service.AuditSensitiveAccess, user.ID, requestMeta(c), map[string]any{
		"resource": "profile",
	})

	c.JSON(200, gin.H{
		"status":  200,
		"message": "OK",
		"user": gin.H{
			"id":       user.ID,
			"email":    user.Email,
			"name":     user.Name,
			"roles":    user.Roles,
			"provider": user.Provider,
		},
	})
}

func (controller *AuthController) setSessionCookies(c *gin.Context, result *config.AuthResult) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(config.AccessTokenCookieName, result.AccessToken, controller.Config.AccessTokenExpiry, "/", controller.Config.CookieDomain, controller.Config.SecureCookie, false)
	c.SetCookie(config.CSRFCookieName, result.CSRFToken, controller.Config.AccessTokenExpiry, "/", controller.Config.CookieDomain, controller.Config.SecureCookie, false)
	c.SetCookie(config.RefreshTokenCookieName, result.RefreshToken, controller.Config.RefreshTokenExpiry, "/api/auth", controller.Config.CookieDomain, controller.Config.SecureCookie, true)
}

func (controller *AuthController) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(config.AccessTokenCookieName, "", -1, "/", controller.Config.CookieDomain, controller.Config.SecureCookie, false)
	c.SetCookie(config.CSRFCookieName, "", -1, "/", controller.Config.CookieDomain, controller.Config.SecureCookie, false)
	c.SetCookie(config.RefreshTokenCookieName, "", -1, "/api/auth", controller.Config.CookieDomain, controller.Config.SecureCookie, true)
}

func csrfMatches(c *gin.Context) bool {
	csrfCookie, err := c.Cookie(config.CSRFCookieName)
	return err == nil && csrfCookie != "" && c.GetHeader("X-CSRF-Token") == csrfCookie
}

func requestMeta(c *gin.Context) config.RequestMeta {
	return config.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
