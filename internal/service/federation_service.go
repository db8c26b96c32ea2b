package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mindwell-app/authcore/internal/autherr"
	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"
)

const googleIssuer = "https://accounts.google.com"
const googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

type FederationProvider struct {
	ID      string
	Name    string
	OAuth   oauth2.Config
	Issuer  string
	JWKSURL string
}

type FederationServiceConfig struct {
	Providers       map[string]config.OAuthProviderConfig
	ProviderTimeout int
}

// FederationService drives the handshake with external identity providers.
// Provider responses are untrusted input: ID tokens are validated against the
// provider's published keys before any claim is believed.
type FederationService struct {
	Config    FederationServiceConfig
	JWKS      *JWKSService
	Database  *gorm.DB
	providers map[string]*FederationProvider
}

func NewFederationService(config FederationServiceConfig, jwks *JWKSService, database *gorm.DB) *FederationService {
	return &FederationService{
		Config:    config,
		JWKS:      jwks,
		Database:  database,
		providers: make(map[string]*FederationProvider),
	}
}

func (f *FederationService) Init() error {
	for id, cfg := range f.Config.Providers {
		provider := &FederationProvider{
			ID:   id,
			Name: cfg.Name,
			OAuth: oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURL,
				Scopes:       cfg.Scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:  cfg.AuthURL,
					TokenURL: cfg.TokenURL,
				},
			},
			Issuer:  cfg.Issuer,
			JWKSURL: cfg.JWKSURL,
		}

		if id == "google" {
			provider.OAuth.Endpoint = google.Endpoint
			provider.Issuer = googleIssuer
			provider.JWKSURL = googleJWKSURL
			if len(provider.OAuth.Scopes) == 0 {
				provider.OAuth.Scopes = []string{"openid", "email", "profile"}
			}
		}

		if provider.OAuth.ClientID == "" || provider.Issuer == "" || provider.JWKSURL == "" {
			return fmt.Errorf("provider %s is missing client id, issuer or jwks url", id)
		}

		f.providers[id] = provider
		log.Info().Str("provider", id).Msg("Initialized identity provider")
	}

	return nil
}

func (f *FederationService) GetProvider(id string) (*FederationProvider, bool) {
	provider, exists := f.providers[id]
	return provider, exists
}

func (f *FederationService) ConfiguredProviders() []string {
	ids := make([]string, 0, len(f.providers))
	for id := range f.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BuildAuthorizationURL is deterministic given state, verifier and nonce: it
// always carries state, the S256 code challenge and the requested scopes.
func (f *FederationService) BuildAuthorizationURL(provider *FederationProvider, state string, codeVerifier string, nonce string) string {
	return provider.OAuth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(codeVerifier),
		oauth2.SetAuthURLParam("nonce", nonce))
}

// ExchangeCode trades the authorization code for provider tokens. Network
// errors, non-2xx responses and a missing id_token all fail the same way.
func (f *FederationService) ExchangeCode(ctx context.Context, provider *FederationProvider, code string, codeVerifier string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(f.Config.ProviderTimeout)*time.Second)
	defer cancel()

	token, err := provider.OAuth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		log.Error().Err(err).Str("provider", provider.ID).Msg("Token exchange failed")
		return "", fmt.Errorf("%w: %s", autherr.ErrExchangeFailed, provider.ID)
	}

	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token in response", autherr.ErrExchangeFailed)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", fmt.Errorf("%w: no id token in response", autherr.ErrExchangeFailed)
	}

	return rawIDToken, nil
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
	jwt.RegisteredClaims
}

// ValidateIDToken verifies the token signature against the provider's
// published keys plus issuer, audience, expiry and nonce. Any mismatch fails
// closed; the detail stays in the server log.
func (f *FederationService) ValidateIDToken(ctx context.Context, provider *FederationProvider, rawIDToken string, expectedNonce string) (*config.Claims, error) {
	claims := &idTokenClaims{}

	token, err := jwt.ParseWithClaims(rawIDToken, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("id token has no key id")
		}
		return f.JWKS.GetKey(ctx, provider.JWKSURL, kid)
	}, jwt.WithIssuer(provider.Issuer), jwt.WithAudience(provider.OAuth.ClientID), jwt.WithExpirationRequired())

	if err != nil {
		log.Warn().Err(err).Str("provider", provider.ID).Msg("ID token validation failed")
		return nil, autherr.ErrIDTokenValidationFailed
	}

	if !token.Valid || claims.Subject == "" {
		return nil, autherr.ErrIDTokenValidationFailed
	}

	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(expectedNonce)) != 1 {
		log.Warn().Str("provider", provider.ID).Msg("ID token nonce mismatch")
		return nil, autherr.ErrIDTokenValidationFailed
	}

	return &config.Claims{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Nonce:         claims.Nonce,
		Provider:      provider.ID,
	}, nil
}

// MapToLocalUser resolves validated claims to a local account: by federated
// identifier first, then by email, provisioning a new user as a last resort.
// When linkUserID is set the identity is attached to that account instead.
func (f *FederationService) MapToLocalUser(claims *config.Claims, linkUserID string) (*model.User, bool, error) {
	now := time.Now().Unix()

	if linkUserID != "" {
		var user model.User
		if err := f.Database.Where("id = ?", linkUserID).First(&user).Error; err != nil {
			return nil, false, err
		}
		user.Provider = claims.Provider
		user.ProviderSub = claims.Subject
		user.UpdatedAt = now
		if err := f.Database.Save(&user).Error; err != nil {
			return nil, false, err
		}
		log.Info().Str("userId", user.ID).Str("provider", claims.Provider).Msg("Linked federated identity to existing account")
		return &user, false, nil
	}

	var user model.User

	err := f.Database.Where("provider = ? AND provider_sub = ?", claims.Provider, claims.Subject).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if claims.Email != "" {
		err = f.Database.Where("email = ?", claims.Email).First(&user).Error
		if err == nil {
			user.Provider = claims.Provider
			user.ProviderSub = claims.Subject
			user.UpdatedAt = now
			if err := f.Database.Save(&user).Error; err != nil {
				return nil, false, err
			}
			return &user, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	user = model.User{
		ID:          uuid.New().String(),
		Email:       claims.Email,
		Name:        claims.Name,
		Roles:       "user",
		Provider:    claims.Provider,
		ProviderSub: claims.Subject,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := f.Database.Create(&user).Error; err != nil {
		return nil, false, err
	}

	log.Info().Str("userId", user.ID).Str("provider", claims.Provider).Msg("Provisioned new user from federated identity")
	return &user, true, nil
}
