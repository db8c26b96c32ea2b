package middleware

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type OriginMiddlewareConfig struct {
	AllowedOrigins []string
}

// OriginMiddleware guards flow-initiation endpoints: a browser request whose
// Origin (or Referer, when Origin is absent) is not in the allowlist is
// rejected before anything else runs. Callback endpoints never use this guard
// since the redirect originates from the provider, not the browser's prior
// origin.
type OriginMiddleware struct {
	Config OriginMiddlewareConfig
}

func NewOriginMiddleware(config OriginMiddlewareConfig) *OriginMiddleware {
	return &OriginMiddleware{
		Config: config,
	}
}

func (m *OriginMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if origin == "" {
			if referer := c.GetHeader("Referer"); referer != "" {
				if parsed, err := url.Parse(referer); err == nil {
					origin = parsed.Scheme + "://" + parsed.Host
				}
			}
		}

		// Non-browser clients send neither header; the remaining guards
		// still apply to them
		if origin == "" {
			c.Next()
			return
		}

		for _, allowed := range m.Config.AllowedOrigins {
			if strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(origin, "/")) {
				c.Next()
				return
			}
		}

		log.Warn().Str("origin", origin).Str("ip", c.ClientIP()).Msg("Rejected request from unauthorized origin")
		c.AbortWithStatusJSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
			"code":    "unauthorized_origin",
		})
	}
}
