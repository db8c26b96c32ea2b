package config

// Version information, set at build time

var Version = "development"
var CommitHash = "development"
var BuildTimestamp = "0000-00-00T00:00:00Z"

// Cookie name templates

var AccessTokenCookieName = "authcore-access-token"
var RefreshTokenCookieName = "authcore-refresh-token"
var CSRFCookieName = "authcore-csrf"

// Main app config

type Config struct {
	Port                int    `mapstructure:"port" validate:"required"`
	Address             string `mapstructure:"address" validate:"required,ip4_addr"`
	AppURL              string `mapstructure:"app-url" validate:"required,url"`
	FrontendURL         string `mapstructure:"frontend-url" validate:"required,url"`
	CookieDomain        string `mapstructure:"cookie-domain" validate:"required"`
	SecureCookie        bool   `mapstructure:"secure-cookie"`
	DatabasePath        string `mapstructure:"database-path" validate:"required"`
	JWTSecret           string `mapstructure:"jwt-secret"`
	JWTSecretFile       string `mapstructure:"jwt-secret-file"`
	Issuer              string `mapstructure:"issuer" validate:"required,url"`
	AccessTokenExpiry   int    `mapstructure:"access-token-expiry" validate:"required,min=60"`
	RefreshTokenExpiry  int    `mapstructure:"refresh-token-expiry" validate:"required,min=3600"`
	StateExpiry         int    `mapstructure:"state-expiry" validate:"required,min=60"`
	AuthCodeExpiry      int    `mapstructure:"auth-code-expiry" validate:"required,min=60"`
	AllowedOrigins      string `mapstructure:"allowed-origins" validate:"required"`
	TrustedProxies      string `mapstructure:"trusted-proxies"`
	OAuthRateLimit      int    `mapstructure:"oauth-rate-limit" validate:"required,min=1"`
	APIRateLimit        int    `mapstructure:"api-rate-limit" validate:"required,min=1"`
	RateLimitWindow     int    `mapstructure:"rate-limit-window" validate:"required,min=1"`
	SuspicionThreshold  int    `mapstructure:"suspicion-threshold" validate:"required,min=1"`
	SuspicionWindow     int    `mapstructure:"suspicion-window" validate:"required,min=60"`
	RedisURL            string `mapstructure:"redis-url"`
	AuditRetentionDays  int    `mapstructure:"audit-retention-days" validate:"required,min=1"`
	ProviderTimeout     int    `mapstructure:"provider-timeout" validate:"required,min=1"`
	JWKSCacheExpiry     int    `mapstructure:"jwks-cache-expiry" validate:"required,min=60"`
	LogLevel            string `mapstructure:"log-level" validate:"oneof=trace debug info warn error fatal panic"`
	LogJSON             bool   `mapstructure:"log-json"`
	DisableAuditStream  bool   `mapstructure:"disable-audit-stream"`
}

// OAuth/OIDC provider config

type OAuthProviderConfig struct {
	ClientID         string   `mapstructure:"client-id"`
	ClientSecret     string   `mapstructure:"client-secret"`
	ClientSecretFile string   `mapstructure:"client-secret-file"`
	Scopes           []string `mapstructure:"scopes"`
	RedirectURL      string   `mapstructure:"redirect-url"`
	AuthURL          string   `mapstructure:"auth-url"`
	TokenURL         string   `mapstructure:"token-url"`
	JWKSURL          string   `mapstructure:"jwks-url"`
	Issuer           string   `mapstructure:"issuer"`
	Name             string   `mapstructure:"name"`
}

var OverrideProviders = map[string]string{
	"google": "Google",
	"auth0":  "Auth0",
}

// ID token claims returned by a provider after validation

type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
	Provider      string `json:"-"`
}

// Session descriptor, produced by the session service and handed to the
// controllers for cookie placement. Never persisted as a unit.

type AuthResult struct {
	UserID       string
	Email        string
	Roles        string
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	IsNewUser    bool
}

// Per-request client metadata threaded through the services instead of any
// ambient request lookup.

type RequestMeta struct {
	IP        string
	UserAgent string
}
