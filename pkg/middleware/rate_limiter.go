// Package middleware provides HTTP middleware components.
package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"character-nexus/backend/pkg/errors"
	"character-nexus/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions limits each client IP to 20 requests per second.
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          20,
		Burst:          40,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements per-client token bucket limiting for Gin
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*client
	logger  *logger.Logger
	now     func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(log *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = DefaultRateLimiterOptions().KeyFunc
	}
	if opts.ExpiryDuration <= 0 {
		opts.ExpiryDuration = time.Hour
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	return &RateLimiter{
		options: opts,
		clients: make(map[string]*client),
		logger:  log.WithComponent("rate_limiter"),
		now:     time.Now,
	}
}

// Middleware rejects requests over the limit with 429.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	limit := strconv.Itoa(r.options.Burst)

	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)

		if !r.allow(key) {
			r.logger.Warn("Rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Limit", limit)
			_ = c.Error(errors.NewTooManyRequestsError("Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.clients[key]
	if !exists {
		v = &client{limiter: rate.NewLimiter(r.options.Limit, r.options.Burst)}
		r.clients[key] = v
	}
	v.lastSeen = r.now()
	return v.limiter.AllowN(v.lastSeen, 1)
}

// Run removes idle clients every minute until ctx is done.
func (r *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (r *RateLimiter) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for k, v := range r.clients {
		if now.Sub(v.lastSeen) > r.options.ExpiryDuration {
			delete(r.clients, k)
		}
	}
}
