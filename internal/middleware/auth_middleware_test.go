package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/middleware"
	"github.com/mindwell-app/authcore/internal/model"
	"github.com/mindwell-app/authcore/internal/service"
	"github.com/mindwell-app/authcore/internal/utils/tlog"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
)

func setupAuthMiddleware(t *testing.T) (*gin.Engine, *service.SessionService) {
	t.Helper()

	tlog.NewSimpleLogger().Init()
	gin.SetMode(gin.TestMode)

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: ":memory:",
	})
	assert.NilError(t, databaseService.Init())
	database := databaseService.GetDatabase()

	now := time.Now().Unix()
	assert.NilError(t, database.Create(&model.User{
		ID:        "user-1",
		Email:     "alice@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)

	ledger := service.NewLedgerService(service.LedgerServiceConfig{
		RefreshTokenExpiry: 3600,
	}, database)
	session := service.NewSessionService(service.SessionServiceConfig{
		JWTSecret:         "test-secret-test-secret-test-secret",
		Issuer:            "https://auth.example.com",
		AccessTokenExpiry: 900,
	}, ledger, database)

	guard := middleware.NewAuthMiddleware(session, ledger)

	router := gin.New()
	router.GET("/protected", guard.Middleware(), func(c *gin.Context) {
		claims := c.MustGet("claims").(*service.AccessClaims)
		c.JSON(200, gin.H{"sub": claims.Subject})
	})
	router.POST("/protected", guard.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router, session
}

func issueTokens(t *testing.T, session *service.SessionService) *config.AuthResult {
	t.Helper()

	result, err := session.IssueSession(&model.User{
		ID:    "user-1",
		Email: "alice@example.com",
	}, config.RequestMeta{IP: "10.0.0.1"})
	assert.NilError(t, err)

	return result
}

func TestAuthMiddlewareBearer(t *testing.T) {
	router, session := setupAuthMiddleware(t)
	result := issueTokens(t, session)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)
	assert.Assert(t, recorder.Body.String() == `{"sub":"user-1"}`)
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	router, _ := setupAuthMiddleware(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 401, recorder.Code)
	assert.Assert(t, recorder.Body.String() != "")
}

func TestAuthMiddlewareBlacklistBeforeSignature(t *testing.T) {
	router, session := setupAuthMiddleware(t)
	result := issueTokens(t, session)

	claims, err := session.ValidateAccessToken(result.AccessToken)
	assert.NilError(t, err)

	assert.NilError(t, session.Ledger.BlacklistAccessToken(claims.ID, claims.ExpiresAt.Time))

	// A blacklisted token is rejected with its own code even though the
	// signature is still valid
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 401, recorder.Code)
	assert.Assert(t, strings.Contains(recorder.Body.String(), "token_revoked"))
}

func TestAuthMiddlewareCookieNeedsCSRF(t *testing.T) {
	router, session := setupAuthMiddleware(t)
	result := issueTokens(t, session)

	// GET via cookie works without the CSRF header
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: config.AccessTokenCookieName, Value: result.AccessToken})
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	// POST via cookie without the double submit is rejected
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: config.AccessTokenCookieName, Value: result.AccessToken})
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 401, recorder.Code)

	// POST with a mismatched header is rejected
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: config.AccessTokenCookieName, Value: result.AccessToken})
	req.AddCookie(&http.Cookie{Name: config.CSRFCookieName, Value: result.CSRFToken})
	req.Header.Set("X-CSRF-Token", "something-else")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 401, recorder.Code)

	// POST with the matching double submit passes
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: config.AccessTokenCookieName, Value: result.AccessToken})
	req.AddCookie(&http.Cookie{Name: config.CSRFCookieName, Value: result.CSRFToken})
	req.Header.Set("X-CSRF-Token", result.CSRFToken)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	// Bearer-authenticated POST never needs CSRF
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	router, session := setupAuthMiddleware(t)

	expired := service.NewSessionService(service.SessionServiceConfig{
		JWTSecret:         session.Config.JWTSecret,
		Issuer:            session.Config.Issuer,
		AccessTokenExpiry: -60,
	}, session.Ledger, session.Database)

	result, err := expired.IssueSession(&model.User{ID: "user-1", Email: "alice@example.com"}, config.RequestMeta{IP: "10.0.0.1"})
	assert.NilError(t, err)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 401, recorder.Code)
	assert.Assert(t, strings.Contains(recorder.Body.String(), "token_expired"))
}

