package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type RateLimitMiddlewareConfig struct {
	OAuthLimit         int
	APILimit           int
	Window             time.Duration
	SuspicionThreshold int
}

type windowCounter struct {
	count       int
	windowStart time.Time
}

// RateLimitMiddleware keeps per-IP request counters with a stricter budget on
// OAuth-initiation endpoints, plus a suspicion score: an IP that keeps getting
// throttled is hard-blocked until a full window passes without an attempt.
type RateLimitMiddleware struct {
	Config    RateLimitMiddlewareConfig
	Suspicion SuspicionStore
	mutex     sync.Mutex
	counters  map[string]*windowCounter
}

func NewRateLimitMiddleware(config RateLimitMiddlewareConfig, suspicion SuspicionStore) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		Config:    config,
		Suspicion: suspicion,
		counters:  make(map[string]*windowCounter),
	}
}

// Middleware returns the guard for one bucket. The same instance backs every
// route group so suspicion carries across buckets.
func (m *RateLimitMiddleware) Middleware(bucket string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		suspicionCount, err := m.Suspicion.Count(c.Request.Context(), ip)
		if err != nil {
			log.Error().Err(err).Msg("Suspicion store lookup failed")
		}

		if suspicionCount >= m.Config.SuspicionThreshold {
			// Hard block; recording the attempt keeps the block sliding
			if _, err := m.Suspicion.RecordThrottled(c.Request.Context(), ip); err != nil {
				log.Error().Err(err).Msg("Failed to record throttled attempt")
			}
			log.Warn().Str("ip", ip).Int("suspicion", suspicionCount).Msg("IP is hard blocked")
			m.reject(c)
			return
		}

		if !m.allow(bucket+"|"+ip, limit) {
			if _, err := m.Suspicion.RecordThrottled(c.Request.Context(), ip); err != nil {
				log.Error().Err(err).Msg("Failed to record throttled attempt")
			}
			log.Warn().Str("ip", ip).Str("bucket", bucket).Msg("Request rate limited")
			m.reject(c)
			return
		}

		c.Next()
	}
}

func (m *RateLimitMiddleware) OAuthMiddleware() gin.HandlerFunc {
	return m.Middleware("oauth", m.Config.OAuthLimit)
}

func (m *RateLimitMiddleware) APIMiddleware() gin.HandlerFunc {
	return m.Middleware("api", m.Config.APILimit)
}

func (m *RateLimitMiddleware) allow(key string, limit int) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()

	counter, exists := m.counters[key]
	if !exists || now.Sub(counter.windowStart) >= m.Config.Window {
		m.counters[key] = &windowCounter{count: 1, windowStart: now}
		return true
	}

	counter.count++
	return counter.count <= limit
}

// Cleanup drops stale counters. Run periodically from the bootstrap janitor;
// suspicion entries are swept by their own store.
func (m *RateLimitMiddleware) Cleanup() {
	m.mutex.Lock()
	for key, counter := range m.counters {
		if time.Since(counter.windowStart) >= m.Config.Window {
			delete(m.counters, key)
		}
	}
	m.mutex.Unlock()
}

func (m *RateLimitMiddleware) reject(c *gin.Context) {
	// Deliberately generic: enough for a legitimate client to back off,
	// nothing for an attacker to learn
	c.AbortWithStatusJSON(429, gin.H{
		"status":  429,
		"message": "Too Many Requests",
	})
}
