package ratelimiter

import (
	"net/http"
	"sync"
	"time"

	"github.com/0xReLogic/sensord/internal/utils"
)

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	Allow(clientKey string) bool
}

// TokenBucketRateLimiter implements a per-client token bucket rate limiter
type TokenBucketRateLimiter struct {
	maxTokens   int
	refillRate  time.Duration // one token is added per refillRate
	buckets     map[string]*bucket
	mutex       sync.Mutex
	cleanupTick time.Duration
	idleCutoff  time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

// NewTokenBucketRateLimiter creates a new token bucket rate limiter. Call
// Stop to release the cleanup goroutine.
func NewTokenBucketRateLimiter(maxTokens int, refillRate time.Duration) *TokenBucketRateLimiter {
	rl := &TokenBucketRateLimiter{
		maxTokens:   maxTokens,
		refillRate:  refillRate,
		buckets:     make(map[string]*bucket),
		cleanupTick: 10 * time.Minute,
		idleCutoff:  time.Hour,
		stop:        make(chan struct{}),
	}

	go rl.cleanupRoutine()

	return rl
}

// Allow reports whether a request from clientKey may proceed, consuming a
// token if so.
func (rl *TokenBucketRateLimiter) Allow(clientKey string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	b, exists := rl.buckets[clientKey]
	if !exists {
		b = &bucket{tokens: rl.maxTokens, lastRefill: now}
		rl.buckets[clientKey] = b
	}
	b.lastSeen = now

	if elapsed := now.Sub(b.lastRefill); elapsed >= rl.refillRate {
		tokensToAdd := int(elapsed / rl.refillRate)
		b.tokens += tokensToAdd
		if b.tokens > rl.maxTokens {
			b.tokens = rl.maxTokens
		}
		// keep the fractional remainder so refills stay on schedule
		b.lastRefill = b.lastRefill.Add(time.Duration(tokensToAdd) * rl.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Stop terminates the cleanup goroutine. It is safe to call more than once.
func (rl *TokenBucketRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *TokenBucketRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stop:
			return
		}
	}
}

// cleanup removes buckets idle for longer than idleCutoff
func (rl *TokenBucketRateLimiter) cleanup(now time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := now.Add(-rl.idleCutoff)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// RateLimitMiddleware wraps an http.Handler with rate limiting. Rejected
// requests are passed to reject instead of next.
func RateLimitMiddleware(rateLimiter RateLimiter, reject http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rateLimiter.Allow(utils.RemoteIP(r)) {
				reject.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
