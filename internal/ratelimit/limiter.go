// Package ratelimit throttles the view server's mutating endpoints per client
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/dalfonso89/ratewatch/internal/config"
	"github.com/dalfonso89/ratewatch/internal/logger"
	"github.com/dalfonso89/ratewatch/internal/models"
)

const (
	cleanupInterval = 5 * time.Minute
	idleTimeout     = 30 * time.Minute
)

// Limiter keeps one token bucket per client IP. Buckets refill at
// RateLimitRequests per RateLimitWindow and hold up to RateLimitBurst tokens.
type Limiter struct {
	Configuration *config.Config
	logger        *logger.Logger

	clientBuckets map[string]*clientBucket
	bucketsMutex  sync.Mutex

	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type clientBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewLimiter creates a limiter and starts its idle bucket cleanup
func NewLimiter(configuration *config.Config, logger *logger.Logger) *Limiter {
	rateLimiter := &Limiter{
		Configuration: configuration,
		logger:        logger,
		clientBuckets: make(map[string]*clientBucket),
		now:           time.Now,
		stopCleanup:   make(chan struct{}),
	}

	go rateLimiter.cleanup()

	return rateLimiter
}

// Allow takes a token from clientIP's bucket
func (rateLimiter *Limiter) Allow(clientIP string) bool {
	if !rateLimiter.Configuration.RateLimitEnabled {
		return true
	}

	now := rateLimiter.now()

	rateLimiter.bucketsMutex.Lock()
	bucket, exists := rateLimiter.clientBuckets[clientIP]
	if !exists {
		bucket = &clientBucket{limiter: rate.NewLimiter(rateLimiter.refillRate(), rateLimiter.Configuration.RateLimitBurst)}
		rateLimiter.clientBuckets[clientIP] = bucket
	}
	bucket.lastAccess = now
	rateLimiter.bucketsMutex.Unlock()

	return bucket.limiter.AllowN(now, 1)
}

func (rateLimiter *Limiter) refillRate() rate.Limit {
	window := rateLimiter.Configuration.RateLimitWindow
	if window <= 0 || rateLimiter.Configuration.RateLimitRequests <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(rateLimiter.Configuration.RateLimitRequests) / window.Seconds())
}

// Middleware rejects requests over the limit with 429
func (rateLimiter *Limiter) Middleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		clientIP := rateLimiter.GetClientIP(context.Request)

		if !rateLimiter.Allow(clientIP) {
			rateLimiter.logger.WithFields(map[string]interface{}{
				"client_ip": clientIP,
				"method":    context.Request.Method,
				"path":      context.Request.URL.Path,
			}).Warn("Rate limit exceeded")

			reset := rateLimiter.now().Add(rateLimiter.Configuration.RateLimitWindow)
			context.Header("X-RateLimit-Limit", strconv.Itoa(rateLimiter.Configuration.RateLimitRequests))
			context.Header("X-RateLimit-Remaining", "0")
			context.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			context.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "rate limit exceeded",
				Message: "too many requests, try again later",
				Code:    http.StatusTooManyRequests,
			})
			return
		}

		context.Next()
	}
}

// GetClientIP extracts the client IP, preferring proxy headers
func (rateLimiter *Limiter) GetClientIP(request *http.Request) string {
	if forwardedFor := request.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if clientIP := net.ParseIP(first); clientIP != nil {
			return clientIP.String()
		}
		if host, _, err := net.SplitHostPort(first); err == nil {
			if clientIP := net.ParseIP(host); clientIP != nil {
				return clientIP.String()
			}
		}
	}

	if realIP := request.Header.Get("X-Real-IP"); realIP != "" {
		if clientIP := net.ParseIP(strings.TrimSpace(realIP)); clientIP != nil {
			return clientIP.String()
		}
	}

	clientIP, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return clientIP
}

// Buckets returns the number of tracked clients
func (rateLimiter *Limiter) Buckets() int {
	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()
	return len(rateLimiter.clientBuckets)
}

func (rateLimiter *Limiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rateLimiter.evictIdle()
		case <-rateLimiter.stopCleanup:
			return
		}
	}
}

// evictIdle drops buckets unused for idleTimeout
func (rateLimiter *Limiter) evictIdle() {
	now := rateLimiter.now()

	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()
	for clientIP, bucket := range rateLimiter.clientBuckets {
		if now.Sub(bucket.lastAccess) > idleTimeout {
			delete(rateLimiter.clientBuckets, clientIP)
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rateLimiter *Limiter) Stop() {
	rateLimiter.stopOnce.Do(func() {
		close(rateLimiter.stopCleanup)
	})
}
