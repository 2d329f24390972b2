package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ksred/klear-brokerage/internal/config"
	"github.com/ksred/klear-brokerage/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

// perMinute converts a requests-per-minute setting to a limiter rate. Zero or less means no limit.
func perMinute(n float64) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Limit(n / 60.0)
}

// limitFor picks the route family limit for path
func limitFor(path string, limits config.RateLimits) rate.Limit {
	switch {
	case strings.HasPrefix(path, "/api/v1/orders"):
		return perMinute(limits.Orders)
	case strings.HasPrefix(path, "/api/v1/watchlists"):
		return perMinute(limits.Watchlists)
	case strings.HasPrefix(path, "/api/v1/clients"), strings.HasPrefix(path, "/api/v1/instruments"):
		return perMinute(limits.Reference)
	case strings.HasPrefix(path, "/api/v1/internal"):
		return perMinute(limits.Internal)
	default:
		return rate.Inf // No limit for other paths
	}
}

func getLimiter(path, caller string, limits config.RateLimits) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := caller + ":" + path
	v, exists := visitors[key]

	if !exists {
		burst := limits.Burst
		if burst < 1 {
			burst = 1
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limitFor(path, limits), burst),
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit throttles each caller per route using the configured route family limits
func RateLimit(limits config.RateLimits) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		limiter := getLimiter(path, c.ClientIP(), limits)
		if !limiter.Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestLogger logs one line per request with zerolog
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request handled")
	}
}
