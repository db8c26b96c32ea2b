package service

import (
	"errors"
	"strings"

	"github.com/mindwell-app/authcore/internal/autherr"
	"github.com/mindwell-app/authcore/internal/model"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Hash of a throwaway password, compared against when the email is unknown
// so a missing user costs the same as a wrong password.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type CredentialService struct {
	Database *gorm.DB
}

func NewCredentialService(database *gorm.DB) *CredentialService {
	return &CredentialService{
		Database: database,
	}
}

// Validate checks a local email/password pair. The error never distinguishes
// an unknown email from a wrong password.
func (c *CredentialService) Validate(email string, password string) (*model.User, error) {
	var user model.User

	err := c.Database.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, autherr.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == "" {
		// Federated-only account, no local password to check
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, autherr.ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		log.Debug().Str("email", user.Email).Msg("Password mismatch")
		return nil, autherr.ErrInvalidCredentials
	}

	return &user, nil
}
