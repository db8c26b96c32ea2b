package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mindwell-app/authcore/internal/autherr"
	"github.com/mindwell-app/authcore/internal/model"
	"github.com/mindwell-app/authcore/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"gotest.tools/v3/assert"
	"gorm.io/gorm"
)

func setupSessionService(t *testing.T) (*service.SessionService, *gorm.DB) {
	t.Helper()

	database := setupTestDatabase(t)
	createTestUser(t, database, "user-1", "alice@example.com", "")

	ledger := service.NewLedgerService(service.LedgerServiceConfig{
		RefreshTokenExpiry: 3600,
	}, database)

	session := service.NewSessionService(service.SessionServiceConfig{
		JWTSecret:         "test-secret-test-secret-test-secret",
		Issuer:            "https://auth.example.com",
		AccessTokenExpiry: 900,
	}, ledger, database)

	return session, database
}

func TestIssueAndValidateSession(t *testing.T) {
	session, _ := setupSessionService(t)

	result, err := session.IssueSession(&model.User{
		ID:    "user-1",
		Email: "alice@example.com",
		Roles: "user",
	}, testMeta)
	assert.NilError(t, err)
	assert.Assert(t, result.AccessToken != "")
	assert.Assert(t, result.RefreshToken != "")
	assert.Assert(t, result.CSRFToken != "")

	claims, err := session.ValidateAccessToken(result.AccessToken)
	assert.NilError(t, err)
	assert.Equal(t, claims.Subject, "user-1")
	assert.Equal(t, claims.Email, "alice@example.com")
	assert.Equal(t, claims.Roles, "user")
	assert.Assert(t, claims.ID != "")
	assert.Equal(t, claims.Issuer, "https://auth.example.com")
}

func TestRefreshSessionRotates(t *testing.T) {
	session, _ := setupSessionService(t)

	result, err := session.IssueSession(&model.User{ID: "user-1", Email: "alice@example.com"}, testMeta)
	assert.NilError(t, err)

	refreshed, err := session.RefreshSession(context.Background(), result.RefreshToken, testMeta)
	assert.NilError(t, err)
	assert.Assert(t, refreshed.RefreshToken != result.RefreshToken)
	assert.Equal(t, refreshed.UserID, "user-1")

	claims, err := session.ValidateAccessToken(refreshed.AccessToken)
	assert.NilError(t, err)
	assert.Equal(t, claims.Subject, "user-1")

	// The replaced refresh token now trips reuse detection
	_, err = session.RefreshSession(context.Background(), result.RefreshToken, testMeta)
	assert.Assert(t, errors.Is(err, autherr.ErrReuseDetected))
}

func TestRefreshSessionReuseRevokesEverySession(t *testing.T) {
	session, database := setupSessionService(t)

	first, err := session.IssueSession(&model.User{ID: "user-1", Email: "alice@example.com"}, testMeta)
	assert.NilError(t, err)

	second, err := session.IssueSession(&model.User{ID: "user-1", Email: "alice@example.com"}, testMeta)
	assert.NilError(t, err)

	rotated, err := session.RefreshSession(context.Background(), first.RefreshToken, testMeta)
	assert.NilError(t, err)

	// Replaying the rotated-away token revokes every session for the user,
	// not just the compromised family
	_, err = session.RefreshSession(context.Background(), first.RefreshToken, testMeta)
	assert.Assert(t, errors.Is(err, autherr.ErrReuseDetected))

	_, err = session.RefreshSession(context.Background(), rotated.RefreshToken, testMeta)
	assert.Assert(t, errors.Is(err, autherr.ErrReuseDetected))

	_, err = session.RefreshSession(context.Background(), second.RefreshToken, testMeta)
	assert.Assert(t, errors.Is(err, autherr.ErrReuseDetected))

	var active int64
	err = database.Model(&model.RefreshToken{}).Where("user_id = ? AND revoked = ?", "user-1", false).Count(&active).Error
	assert.NilError(t, err)
	assert.Equal(t, active, int64(0))
}

func TestValidateAccessTokenTampered(t *testing.T) {
	session, _ := setupSessionService(t)

	result, err := session.IssueSession(&model.User{ID: "user-1", Email: "alice@example.com"}, testMeta)
	assert.NilError(t, err)

	tampered := result.AccessToken[:len(result.AccessToken)-4] + "AAAA"

	_, err = session.ValidateAccessToken(tampered)
	assert.Assert(t, errors.Is(err, autherr.ErrInvalidToken))
}

func TestValidateAccessTokenWrongIssuer(t *testing.T) {
	session, _ := setupSessionService(t)

	claims := service.AccessClaims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "user-1",
			Issuer:    "https://elsewhere.example.com",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-test-secret-test-secret"))
	assert.NilError(t, err)

	_, err = session.ValidateAccessToken(signed)
	assert.Assert(t, errors.Is(err, autherr.ErrInvalidToken))
}

func TestValidateAccessTokenExpired(t *testing.T) {
	session, _ := setupSessionService(t)

	claims := service.AccessClaims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "user-1",
			Issuer:    "https://auth.example.com",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-test-secret-test-secret"))
	assert.NilError(t, err)

	_, err = session.ValidateAccessToken(signed)
	assert.Assert(t, errors.Is(err, autherr.ErrTokenExpired))
}

func TestRevokeSession(t *testing.T) {
	session, _ := setupSessionService(t)

	result, err := session.IssueSession(&model.User{ID: "user-1", Email: "alice@example.com"}, testMeta)
	assert.NilError(t, err)

	claims, err := session.ValidateAccessToken(result.AccessToken)
	assert.NilError(t, err)

	err = session.RevokeSession(claims, result.RefreshToken, testMeta)
	assert.NilError(t, err)

	blacklisted, err := session.Ledger.IsBlacklisted(claims.ID)
	assert.NilError(t, err)
	assert.Assert(t, blacklisted)

	_, err = session.RefreshSession(context.Background(), result.RefreshToken, testMeta)
	assert.Assert(t, errors.Is(err, autherr.ErrReuseDetected))
}
