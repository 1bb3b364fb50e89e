package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/huddle/huddle/internal/platform/auth"
)

// RateLimitConfig tunes the per-caller token buckets.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig suits the read surface: dashboards poll a few
// times a minute, and the agent posts once per morning with retries.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// bucketIdleTTL is how long an untouched bucket survives before the
// store drops it. Agents that post once a day must not accumulate a
// bucket per calendar day forever.
const bucketIdleTTL = time.Hour

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastSeen   time.Time
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastSeen:   now,
	}
}

// take refills from elapsed time and spends one token if available.
func (b *tokenBucket) take(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastSeen).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// retryAfter estimates whole seconds until one token is available.
func (b *tokenBucket) retryAfter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.refillRate) + 1
}

func (b *tokenBucket) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastSeen)
}

// limiterStore holds one bucket per caller and prunes callers that have
// gone quiet.
type limiterStore struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	config  RateLimitConfig
	sweepAt time.Time
}

func newLimiterStore(cfg RateLimitConfig, now time.Time) *limiterStore {
	return &limiterStore{
		buckets: make(map[string]*tokenBucket),
		config:  cfg,
		sweepAt: now.Add(bucketIdleTTL),
	}
}

func (s *limiterStore) bucket(key string, now time.Time) *tokenBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.After(s.sweepAt) {
		for k, b := range s.buckets {
			if b.idleSince(now) > bucketIdleTTL {
				delete(s.buckets, k)
			}
		}
		s.sweepAt = now.Add(bucketIdleTTL)
	}

	b, ok := s.buckets[key]
	if !ok {
		b = newTokenBucket(s.config.RequestsPerSecond, s.config.BurstSize, now)
		s.buckets[key] = b
	}
	return b
}

// callerKey scopes buckets to the authenticated practice; routes in
// front of the key check fall back to the client IP.
func callerKey(c echo.Context) string {
	if practice, ok := c.Get(auth.PracticeIDKey).(string); ok && practice != "" {
		return "practice:" + practice
	}
	return "ip:" + c.RealIP()
}

// RateLimit shields the API from a retry storm. One practice exhausting
// its bucket does not slow the others down.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg, time.Now())
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := time.Now()
			b := store.bucket(callerKey(c), now)

			c.Response().Header().Set("X-RateLimit-Limit", limit)
			if !b.take(now) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(b.retryAfter()))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
