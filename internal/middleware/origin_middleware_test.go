package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mindwell-app/authcore/internal/middleware"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
)

func setupOriginRouter(allowedOrigins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	origin := middleware.NewOriginMiddleware(middleware.OriginMiddlewareConfig{
		AllowedOrigins: allowedOrigins,
	})

	router := gin.New()
	router.GET("/guarded", origin.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router
}

func TestOriginMiddleware(t *testing.T) {
	router := setupOriginRouter([]string{"https://app.example.com"})

	// Allowed origin
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Origin", "https://app.example.com")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	// Unknown origin
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 400, recorder.Code)

	// Referer fallback when Origin is absent
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Referer", "https://app.example.com/login?next=/dashboard")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Referer", "https://evil.example.com/login")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 400, recorder.Code)

	// Non-browser client with neither header passes through
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/guarded", nil)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	// Trailing slash and case differences do not matter
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Origin", "https://APP.example.com/")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)
}
