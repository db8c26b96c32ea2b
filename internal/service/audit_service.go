package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/model"
	"github.com/mindwell-app/authcore/internal/utils/tlog"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	AuditLoginSuccess    = "login_success"
	AuditLoginFailure    = "login_failure"
	AuditLogout          = "logout"
	AuditTokenRefresh    = "token_refresh"
	AuditReuseDetected   = "refresh_token_reuse"
	AuditStateRejected   = "oauth_state_rejected"
	AuditFederationError = "federation_error"
	AuditAccountLinked   = "account_linked"
	AuditSensitiveAccess = "sensitive_access"
)

// Substrings that mark a detail key as secret-shaped. Matching values are
// replaced before the row is written.
var redactedKeyParts = []string{"password", "token", "secret", "code", "authorization"}

type AuditServiceConfig struct {
	RetentionDays int
}

// AuditService keeps the append-only record of security-relevant actions.
// Rows are written with redacted details and mirrored on the audit log
// stream.
type AuditService struct {
	Config   AuditServiceConfig
	Database *gorm.DB
}

func NewAuditService(config AuditServiceConfig, database *gorm.DB) *AuditService {
	return &AuditService{
		Config:   config,
		Database: database,
	}
}

func (a *AuditService) Record(action string, userID string, meta config.RequestMeta, details map[string]any) {
	redacted := RedactDetails(details)

	payload := ""
	if len(redacted) > 0 {
		data, err := json.Marshal(redacted)
		if err != nil {
			log.Error().Err(err).Str("action", action).Msg("Failed to marshal audit details")
		} else {
			payload = string(data)
		}
	}

	record := model.AuditLog{
		Action:    action,
		UserID:    userID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Details:   payload,
		CreatedAt: time.Now().Unix(),
	}

	// An audit write failure must not fail the request it describes
	if err := a.Database.Create(&record).Error; err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to write audit record")
	}

	tlog.Audit.Info().
		Str("event", action).
		Str("userId", userID).
		Str("ip", meta.IP).
		Str("userAgent", meta.UserAgent).
		Interface("details", redacted).
		Send()
}

func (a *AuditService) CleanupExpired() error {
	cutoff := time.Now().AddDate(0, 0, -a.Config.RetentionDays).Unix()
	return a.Database.Where("created_at < ?", cutoff).Delete(&model.AuditLog{}).Error
}

// RedactDetails replaces the value of any secret-shaped key. Nested maps are
// walked; everything else passes through untouched.
func RedactDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}

	result := make(map[string]any, len(details))

	for key, value := range details {
		if isRedactedKey(key) {
			result[key] = "[REDACTED]"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			result[key] = RedactDetails(nested)
			continue
		}
		result[key] = value
	}

	return result
}

func isRedactedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range redactedKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
