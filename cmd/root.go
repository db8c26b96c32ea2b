package cmd

import (
	"strings"

	"github.com/mindwell-app/authcore/internal/bootstrap"
	"github.com/mindwell-app/authcore/internal/config"
	"github.com/mindwell-app/authcore/internal/utils/tlog"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "authcore",
	Short: "Authentication and session security service.",
	Long:  `Authcore is the OAuth/OIDC authentication and session-security core behind the Mindwell API: identity provider federation, rotating refresh tokens, token revocation and audit logging.`,
	Run: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				log.Fatal().Err(err).Msg("Failed to read config file")
			}
		}

		log.Info().Msg("Parsing config")
		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse config")
		}

		// Fail fast: a bad config must never make it to the first request
		log.Info().Msg("Validating config")
		validate := validator.New()
		if err := validate.Struct(cfg); err != nil {
			log.Fatal().Err(err).Msg("Invalid config")
		}

		if cfg.JWTSecret == "" && cfg.JWTSecretFile == "" {
			log.Fatal().Msg("No JWT signing secret provided")
		}

		var providers map[string]config.OAuthProviderConfig
		if err := viper.UnmarshalKey("providers", &providers); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse providers")
		}

		logger := tlog.NewLogger(tlog.LoggerConfig{
			Level:        cfg.LogLevel,
			JSON:         cfg.LogJSON,
			AuditEnabled: !cfg.DisableAuditStream,
		})
		logger.Init()

		app := bootstrap.NewBootstrapApp(cfg, providers)

		if err := app.Setup(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start")
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run command")
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file")

	rootCmd.Flags().Int("port", 3000, "Port to listen on")
	rootCmd.Flags().String("address", "0.0.0.0", "Address to bind to")
	rootCmd.Flags().String("app-url", "", "Public URL of this service")
	rootCmd.Flags().String("frontend-url", "", "URL of the frontend rendering tier")
	rootCmd.Flags().String("cookie-domain", "", "Domain for session cookies")
	rootCmd.Flags().Bool("secure-cookie", true, "Set the secure flag on cookies")
	rootCmd.Flags().String("database-path", "/data/authcore.db", "Path to the database file")
	rootCmd.Flags().String("jwt-secret", "", "Secret for signing access tokens")
	rootCmd.Flags().String("jwt-secret-file", "", "File containing the access token signing secret")
	rootCmd.Flags().String("issuer", "", "Issuer claim for access tokens")
	rootCmd.Flags().Int("access-token-expiry", 900, "Access token lifetime in seconds")
	rootCmd.Flags().Int("refresh-token-expiry", 604800, "Refresh token lifetime in seconds")
	rootCmd.Flags().Int("state-expiry", 600, "OAuth state lifetime in seconds")
	rootCmd.Flags().Int("auth-code-expiry", 300, "Authorization code lifetime in seconds")
	rootCmd.Flags().String("allowed-origins", "", "Comma separated origin allowlist for flow initiation")
	rootCmd.Flags().String("trusted-proxies", "", "Comma separated list of trusted proxies")
	rootCmd.Flags().Int("oauth-rate-limit", 10, "Requests per window on OAuth initiation endpoints")
	rootCmd.Flags().Int("api-rate-limit", 100, "Requests per window on general API endpoints")
	rootCmd.Flags().Int("rate-limit-window", 300, "Rate limit window in seconds")
	rootCmd.Flags().Int("suspicion-threshold", 10, "Throttled attempts before an IP is hard blocked")
	rootCmd.Flags().Int("suspicion-window", 3600, "Rolling suspicion window in seconds")
	rootCmd.Flags().String("redis-url", "", "Redis URL for shared rate limit state (optional)")
	rootCmd.Flags().Int("audit-retention-days", 90, "Days to keep audit records")
	rootCmd.Flags().Int("provider-timeout", 10, "Timeout in seconds for identity provider calls")
	rootCmd.Flags().Int("jwks-cache-expiry", 3600, "Provider signing key cache lifetime in seconds")
	rootCmd.Flags().String("log-level", "info", "Log level")
	rootCmd.Flags().Bool("log-json", false, "Log in JSON format")
	rootCmd.Flags().Bool("disable-audit-stream", false, "Disable the audit log stream")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AUTHCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.BindPFlags(rootCmd.Flags())
}
