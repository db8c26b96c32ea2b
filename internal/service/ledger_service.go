package service

import (
	"context"
	"errors"
	"time"

	"github.com/mindwell-app/authcore/internal/autherr"
	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/model"
	"github.com/mindwell-app/authcore/internal/utils"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerServiceConfig struct {
	RefreshTokenExpiry int
}

// LedgerService owns the refresh token rows and the access token blacklist.
// Refresh secrets are handed out exactly once and stored only as hashes.
type LedgerService struct {
	Config   LedgerServiceConfig
	Database *gorm.DB
}

func NewLedgerService(config LedgerServiceConfig, database *gorm.DB) *LedgerService {
	return &LedgerService{
		Config:   config,
		Database: database,
	}
}

func (l *LedgerService) IssueRefreshToken(userID string, meta config.RequestMeta) (string, error) {
	secret, err := utils.GenerateSecureToken(48)
	if err != nil {
		return "", err
	}

	now := time.Now()

	record := model.RefreshToken{
		ID:          uuid.New().String(),
		UserID:      userID,
		TokenHash:   utils.HashToken(secret),
		FamilyID:    uuid.New().String(),
		CreatedByIP: meta.IP,
		UserAgent:   meta.UserAgent,
		ExpiresAt:   now.Add(time.Duration(l.Config.RefreshTokenExpiry) * time.Second).Unix(),
		CreatedAt:   now.Unix(),
	}

	if err := l.Database.Create(&record).Error; err != nil {
		return "", err
	}

	return secret, nil
}

// RotateRefreshToken revokes the presented token and issues its successor in
// the same family. Redeeming an already-revoked token is treated as theft:
// the entire family is revoked and ErrReuseDetected is returned. The
// check-and-set update closes the race between two concurrent redemptions of
// the same secret, and the surrounding transaction is retried a bounded
// number of times on transient storage failures.
//
// The family revocation runs after the rotation transaction: returning an
// error from the transaction callback rolls it back, so a revocation issued
// inside it would never commit.
func (l *LedgerService) RotateRefreshToken(ctx context.Context, oldToken string, meta config.RequestMeta) (string, string, error) {
	var newSecret string
	var userID string
	var reuseFamilyID string

	operation := func() (struct{}, error) {
		newSecret = ""
		userID = ""
		reuseFamilyID = ""

		err := l.Database.Transaction(func(tx *gorm.DB) error {
			var record model.RefreshToken

			if err := tx.Where("token_hash = ?", utils.HashToken(oldToken)).First(&record).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return autherr.ErrInvalidToken
				}
				return err
			}

			userID = record.UserID

			if record.Revoked {
				log.Warn().Str("userId", record.UserID).Str("familyId", record.FamilyID).Str("ip", meta.IP).Msg("Refresh token reuse detected, revoking family")
				reuseFamilyID = record.FamilyID
				return autherr.ErrReuseDetected
			}

			if record.ExpiresAt <= time.Now().Unix() {
				return autherr.ErrTokenExpired
			}

			secret, err := utils.GenerateSecureToken(48)
			if err != nil {
				return err
			}

			now := time.Now()

			successor := model.RefreshToken{
				ID:          uuid.New().String(),
				UserID:      record.UserID,
				TokenHash:   utils.HashToken(secret),
				FamilyID:    record.FamilyID,
				CreatedByIP: meta.IP,
				UserAgent:   meta.UserAgent,
				ExpiresAt:   now.Add(time.Duration(l.Config.RefreshTokenExpiry) * time.Second).Unix(),
				CreatedAt:   now.Unix(),
			}

			res := tx.Model(&model.RefreshToken{}).
				Where("id = ? AND revoked = ?", record.ID, false).
				Updates(map[string]any{
					"revoked":           true,
					"revoked_by_ip":     meta.IP,
					"replaced_by_token": successor.ID,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// A concurrent request won the rotation
				log.Warn().Str("userId", record.UserID).Str("familyId", record.FamilyID).Str("ip", meta.IP).Msg("Concurrent refresh token redemption, revoking family")
				reuseFamilyID = record.FamilyID
				return autherr.ErrReuseDetected
			}

			if err := tx.Create(&successor).Error; err != nil {
				return err
			}

			newSecret = secret
			return nil
		})

		if err != nil {
			if reuseFamilyID != "" {
				if revokeErr := l.revokeFamily(l.Database, reuseFamilyID, meta.IP); revokeErr != nil {
					log.Error().Err(revokeErr).Str("familyId", reuseFamilyID).Msg("Failed to revoke token family")
				}
			}
			if isAuthKind(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}

		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))

	if err != nil {
		return "", userID, err
	}

	return newSecret, userID, nil
}

// RevokeRefreshToken marks the token revoked. Unknown and already-revoked
// tokens are not errors, revocation is idempotent.
func (l *LedgerService) RevokeRefreshToken(token string, meta config.RequestMeta) error {
	return l.Database.Model(&model.RefreshToken{}).
		Where("token_hash = ? AND revoked = ?", utils.HashToken(token), false).
		Updates(map[string]any{"revoked": true, "revoked_by_ip": meta.IP}).Error
}

func (l *LedgerService) RevokeAllForUser(userID string, ip string) error {
	return l.Database.Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(map[string]any{"revoked": true, "revoked_by_ip": ip}).Error
}

func (l *LedgerService) revokeFamily(db *gorm.DB, familyID string, ip string) error {
	return db.Model(&model.RefreshToken{}).
		Where("family_id = ? AND revoked = ?", familyID, false).
		Updates(map[string]any{"revoked": true, "revoked_by_ip": ip}).Error
}

// BlacklistAccessToken records a jti until the token's natural expiry, after
// which the entry is prunable since the token no longer verifies anyway.
func (l *LedgerService) BlacklistAccessToken(jti string, naturalExpiry time.Time) error {
	record := model.TokenBlacklist{
		JTI:       jti,
		ExpiresAt: naturalExpiry.Unix(),
		CreatedAt: time.Now().Unix(),
	}

	// Blacklisting twice is a no-op
	return l.Database.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

func (l *LedgerService) IsBlacklisted(jti string) (bool, error) {
	var count int64
	err := l.Database.Model(&model.TokenBlacklist{}).Where("jti = ?", jti).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (l *LedgerService) CleanupExpired() error {
	now := time.Now().Unix()

	if err := l.Database.Where("expires_at <= ?", now).Delete(&model.TokenBlacklist{}).Error; err != nil {
		return err
	}

	return l.Database.Where("expires_at <= ?", now).Delete(&model.RefreshToken{}).Error
}

func isAuthKind(err error) bool {
	return errors.Is(err, autherr.ErrInvalidToken) ||
		errors.Is(err, autherr.ErrTokenExpired) ||
		errors.Is(err, autherr.ErrReuseDetected)
}
