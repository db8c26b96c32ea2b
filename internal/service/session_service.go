package service

import (
	"context"
	"errors"
	"time"

	"github.com/mindwell-app/authcore/internal/autherr"
	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/model"
	"github.com/mindwell-app/authcore/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type SessionServiceConfig struct {
	JWTSecret         string
	Issuer            string
	AccessTokenExpiry int
}

type AccessClaims struct {
	Email string `json:"email"`
	Roles string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// SessionService is the single choke point through which every successful
// authentication passes, local or federated. It guarantees a consistent token
// shape and consistent refresh token bookkeeping regardless of entry path.
type SessionService struct {
	Config   SessionServiceConfig
	Ledger   *LedgerService
	Database *gorm.DB
}

func NewSessionService(config SessionServiceConfig, ledger *LedgerService, database *gorm.DB) *SessionService {
	return &SessionService{
		Config:   config,
		Ledger:   ledger,
		Database: database,
	}
}

func (s *SessionService) IssueSession(user *model.User, meta config.RequestMeta) (*config.AuthResult, error) {
	accessToken, err := s.mintAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.Ledger.IssueRefreshToken(user.ID, meta)
	if err != nil {
		return nil, err
	}

	csrfToken, err := utils.GenerateSecureToken(32)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("userId", user.ID).Msg("Issued session")

	return &config.AuthResult{
		UserID:       user.ID,
		Email:        user.Email,
		Roles:        user.Roles,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CSRFToken:    csrfToken,
	}, nil
}

// RefreshSession rotates the refresh token and mints a fresh access token.
// ErrReuseDetected is the compromise path: every active session for the user
// is revoked before the error is returned, so the client sees a forced
// re-login rather than an ordinary expiry.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string, meta config.RequestMeta) (*config.AuthResult, error) {
	newToken, userID, err := s.Ledger.RotateRefreshToken(ctx, refreshToken, meta)

	if err != nil {
		if errors.Is(err, autherr.ErrReuseDetected) && userID != "" {
			if revokeErr := s.Ledger.RevokeAllForUser(userID, meta.IP); revokeErr != nil {
				log.Error().Err(revokeErr).Str("userId", userID).Msg("Failed to revoke user sessions after reuse detection")
			}
		}
		return nil, err
	}

	var user model.User
	if err := s.Database.Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}

	accessToken, err := s.mintAccessToken(&user)
	if err != nil {
		return nil, err
	}

	csrfToken, err := utils.GenerateSecureToken(32)
	if err != nil {
		return nil, err
	}

	return &config.AuthResult{
		UserID:       user.ID,
		Email:        user.Email,
		Roles:        user.Roles,
		AccessToken:  accessToken,
		RefreshToken: newToken,
		CSRFToken:    csrfToken,
	}, nil
}

// RevokeSession is the logout path: the access token's jti goes on the
// blacklist until its natural expiry and the refresh token is revoked.
func (s *SessionService) RevokeSession(claims *AccessClaims, refreshToken string, meta config.RequestMeta) error {
	if claims != nil && claims.ID != "" && claims.ExpiresAt != nil {
		if err := s.Ledger.BlacklistAccessToken(claims.ID, claims.ExpiresAt.Time); err != nil {
			return err
		}
	}

	if refreshToken != "" {
		return s.Ledger.RevokeRefreshToken(refreshToken, meta)
	}

	return nil
}

// ValidateAccessToken verifies signature, issuer and expiry. Expired tokens
// and invalid signatures map to distinct errors so the client can pick
// between a silent refresh and a forced re-login.
func (s *SessionService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, autherr.ErrInvalidToken
		}
		return []byte(s.Config.JWTSecret), nil
	}, jwt.WithIssuer(s.Config.Issuer), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherr.ErrTokenExpired
		}
		return nil, autherr.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, autherr.ErrInvalidToken
	}

	return claims, nil
}

func (s *SessionService) mintAccessToken(user *model.User) (string, error) {
	now := time.Now()

	claims := AccessClaims{
		Email: user.Email,
		Roles: user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			Issuer:    s.Config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.Config.AccessTokenExpiry) * time.Second)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.Config.JWTSecret))
}
