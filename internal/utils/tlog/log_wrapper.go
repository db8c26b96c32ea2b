package tlog

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Logger struct {
	Audit zerolog.Logger
	HTTP  zerolog.Logger
	App   zerolog.Logger
}

var (
	Audit zerolog.Logger
	HTTP  zerolog.Logger
	App   zerolog.Logger
)

type LoggerConfig struct {
	Level        string
	JSON         bool
	AuditEnabled bool
}

func NewLogger(cfg LoggerConfig) *Logger {
	baseLogger := log.With().
		Timestamp().
		Caller().
		Logger().
		Level(parseLogLevel(cfg.Level))

	if !cfg.JSON {
		baseLogger = baseLogger.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	auditLogger := zerolog.Nop()
	if cfg.AuditEnabled {
		auditLogger = baseLogger.With().Str("log_stream", "audit").Logger()
	}

	return &Logger{
		Audit: auditLogger,
		HTTP:  baseLogger.With().Str("log_stream", "http").Logger(),
		App:   baseLogger.With().Str("log_stream", "app").Logger(),
	}
}

func NewSimpleLogger() *Logger {
	return NewLogger(LoggerConfig{
		Level:        "info",
		JSON:         false,
		AuditEnabled: false,
	})
}

func (l *Logger) Init() {
	Audit = l.Audit
	HTTP = l.HTTP
	App = l.App
}

func parseLogLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warn().Err(err).Str("level", level).Msg("Invalid log level, defaulting to info")
		parsedLevel = zerolog.InfoLevel
	}
	return parsedLevel
}
