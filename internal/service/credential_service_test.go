package service_test

import (
	"errors"
	"testing"

	"github.com/mindwell-app/authcore/internal/autherr"
	"github.com/mindwell-app/authcore/internal/service"

	"golang.org/x/crypto/bcrypt"
	"gotest.tools/v3/assert"
)

func TestValidateCredentials(t *testing.T) {
	database := setupTestDatabase(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse battery staple"), bcrypt.DefaultCost)
	assert.NilError(t, err)

	createTestUser(t, database, "user-1", "alice@example.com", string(hash))

	credential := service.NewCredentialService(database)

	user, err := credential.Validate("alice@example.com", "correct horse battery staple")
	assert.NilError(t, err)
	assert.Equal(t, user.ID, "user-1")

	// Email lookup is case and whitespace tolerant
	user, err = credential.Validate("  alice@example.com ", "correct horse battery staple")
	assert.NilError(t, err)
	assert.Equal(t, user.ID, "user-1")
}

func TestValidateCredentialsIndistinguishableFailures(t *testing.T) {
	database := setupTestDatabase(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse battery staple"), bcrypt.DefaultCost)
	assert.NilError(t, err)

	createTestUser(t, database, "user-1", "alice@example.com", string(hash))

	credential := service.NewCredentialService(database)

	_, wrongPassword := credential.Validate("alice@example.com", "wrong")
	_, unknownEmail := credential.Validate("nobody@example.com", "wrong")

	// Wrong password and unknown email fail identically
	assert.Assert(t, errors.Is(wrongPassword, autherr.ErrInvalidCredentials))
	assert.Assert(t, errors.Is(unknownEmail, autherr.ErrInvalidCredentials))
}

func TestValidateCredentialsFederatedOnlyAccount(t *testing.T) {
	database := setupTestDatabase(t)

	createTestUser(t, database, "user-1", "alice@example.com", "")

	credential := service.NewCredentialService(database)

	_, err := credential.Validate("alice@example.com", "anything")
	assert.Assert(t, errors.Is(err, autherr.ErrInvalidCredentials))
}
