package service_test

import (
	"encoding/json"
	"testing"

	"github.com/mindwell-app/authcore/internal/model"
	"github.com/mindwell-app/authcore/internal/service"

	"gotest.tools/v3/assert"
)

func TestRedactDetails(t *testing.T) {
	details := map[string]any{
		"email":         "alice@example.com",
		"password":      "hunter2",
		"refresh_token": "secret-value",
		"provider":      "google",
		"exchange": map[string]any{
			"authorization_code": "abc123",
			"reason":             "invalid_grant",
		},
	}

	redacted := service.RedactDetails(details)

	assert.Equal(t, redacted["email"], "alice@example.com")
	assert.Equal(t, redacted["password"], "[REDACTED]")
	assert.Equal(t, redacted["refresh_token"], "[REDACTED]")
	assert.Equal(t, redacted["provider"], "google")

	nested := redacted["exchange"].(map[string]any)
	assert.Equal(t, nested["authorization_code"], "[REDACTED]")
	assert.Equal(t, nested["reason"], "invalid_grant")

	// The input map is left untouched
	assert.Equal(t, details["password"], "hunter2")
}

func TestRedactDetailsNil(t *testing.T) {
	assert.Assert(t, service.RedactDetails(nil) == nil)
}

func TestAuditRecordWritesRedactedRow(t *testing.T) {
	database := setupTestDatabase(t)
	audit := service.NewAuditService(service.AuditServiceConfig{RetentionDays: 90}, database)

	audit.Record(service.AuditLoginFailure, "", testMeta, map[string]any{
		"email":    "alice@example.com",
		"password": "hunter2",
	})

	var record model.AuditLog
	assert.NilError(t, database.First(&record).Error)
	assert.Equal(t, record.Action, service.AuditLoginFailure)
	assert.Equal(t, record.IPAddress, testMeta.IP)
	assert.Assert(t, record.CreatedAt > 0)

	var details map[string]any
	assert.NilError(t, json.Unmarshal([]byte(record.Details), &details))
	assert.Equal(t, details["email"], "alice@example.com")
	assert.Equal(t, details["password"], "[REDACTED]")
}

func TestAuditCleanupExpired(t *testing.T) {
	database := setupTestDatabase(t)
	audit := service.NewAuditService(service.AuditServiceConfig{RetentionDays: 30}, database)

	audit.Record(service.AuditLoginSuccess, "user-1", testMeta, nil)

	// Age the row beyond the retention window
	err := database.Model(&model.AuditLog{}).Where("1 = 1").Update("created_at", 1).Error
	assert.NilError(t, err)

	assert.NilError(t, audit.CleanupExpired())

	var count int64
	assert.NilError(t, database.Model(&model.AuditLog{}).Count(&count).Error)
	assert.Equal(t, count, int64(0))
}
