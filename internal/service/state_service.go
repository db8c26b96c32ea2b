package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/mindwell-app/authcore/internal/autherr"
	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/model"
	"github.com/mindwell-app/authcore/internal/utils"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type StateServiceConfig struct {
	StateExpiry    int
	AuthCodeExpiry int
}

// StateService owns the short-lived CSRF state records for the redirect-based
// authorization flow and the one-time PKCE authorization codes. Both are
// strictly single-use.
type StateService struct {
	Config   StateServiceConfig
	Database *gorm.DB
}

func NewStateService(config StateServiceConfig, database *gorm.DB) *StateService {
	return &StateService{
		Config:   config,
		Database: database,
	}
}

func (s *StateService) CreateState(userID string, provider string, redirectURL string, linkMode bool, meta config.RequestMeta) (*model.OAuthState, error) {
	state, err := utils.GenerateSecureToken(32)
	if err != nil {
		return nil, err
	}

	nonce, err := utils.GenerateSecureToken(32)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	record := model.OAuthState{
		State:        state,
		UserID:       userID,
		Provider:     provider,
		RedirectURL:  redirectURL,
		LinkMode:     linkMode,
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        nonce,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		ExpiresAt:    now.Add(time.Duration(s.Config.StateExpiry) * time.Second).Unix(),
		CreatedAt:    now.Unix(),
	}

	if err := s.Database.Create(&record).Error; err != nil {
		return nil, err
	}

	log.Debug().Str("provider", provider).Bool("linkMode", linkMode).Msg("Created OAuth state")
	return &record, nil
}

// ConsumeState looks up and deletes the state in one transaction. The delete
// carries the replay protection: if two requests race on the same state, only
// one delete reports an affected row.
func (s *StateService) ConsumeState(state string) (*model.OAuthState, error) {
	var record model.OAuthState

	err := s.Database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", state).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return autherr.ErrExpiredOrUnknownState
			}
			return err
		}

		res := tx.Where("state = ?", state).Delete(&model.OAuthState{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return autherr.ErrExpiredOrUnknownState
		}

		if record.ExpiresAt <= time.Now().Unix() {
			return autherr.ErrExpiredOrUnknownState
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *StateService) CreateAuthorizationCode(userID string, clientID string, redirectURI string, codeChallenge string, scope string, meta config.RequestMeta) (string, error) {
	code, err := utils.GenerateSecureToken(32)
	if err != nil {
		return "", err
	}

	now := time.Now()

	record := model.AuthorizationCode{
		Code:                code,
		UserID:              userID,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: "S256",
		Scope:               scope,
		CreatedByIP:         meta.IP,
		ExpiresAt:           now.Add(time.Duration(s.Config.AuthCodeExpiry) * time.Second).Unix(),
		CreatedAt:           now.Unix(),
	}

	if err := s.Database.Create(&record).Error; err != nil {
		return "", err
	}

	return code, nil
}

// RedeemAuthorizationCode flips used exactly once. Expired or already-used
// codes and PKCE verifier mismatches are indistinguishable to the caller.
func (s *StateService) RedeemAuthorizationCode(code string, codeVerifier string, redirectURI string, meta config.RequestMeta) (*model.AuthorizationCode, error) {
	var record model.AuthorizationCode

	err := s.Database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return autherr.ErrCodeInvalid
			}
			return err
		}

		if record.ExpiresAt <= time.Now().Unix() {
			return autherr.ErrCodeInvalid
		}

		if record.RedirectURI != redirectURI {
			return autherr.ErrCodeInvalid
		}

		if !verifyPKCE(record.CodeChallenge, codeVerifier) {
			return autherr.ErrCodeInvalid
		}

		res := tx.Model(&model.AuthorizationCode{}).
			Where("code = ? AND used = ?", code, false).
			Updates(map[string]any{"used": true, "used_by_ip": meta.IP})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			log.Warn().Str("ip", meta.IP).Msg("Authorization code replayed")
			return autherr.ErrCodeInvalid
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *StateService) CleanupExpired() error {
	now := time.Now().Unix()

	if err := s.Database.Where("expires_at <= ?", now).Delete(&model.OAuthState{}).Error; err != nil {
		return err
	}

	return s.Database.Where("expires_at <= ?", now).Delete(&model.AuthorizationCode{}).Error
}

// ComputeCodeChallenge derives the S256 challenge for a verifier.
func ComputeCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func verifyPKCE(challenge string, verifier string) bool {
	expected := ComputeCodeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}
