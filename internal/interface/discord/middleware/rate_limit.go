// Package middleware contains the checks every slash command passes through
// before its handler runs.
package middleware

import (
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Per-user token bucket. Repeated violations earn a short ban.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per user.
	RequestsPerMinute int

	// BurstSize is the bucket capacity.
	BurstSize int

	// CleanupInterval is how often idle buckets are dropped. Zero disables
	// the background loop.
	CleanupInterval time.Duration

	// BanDuration is how long a user is blocked after BanThreshold violations.
	BanDuration time.Duration

	// BanThreshold is the number of violations within five minutes that
	// triggers a ban. Zero disables bans.
	BanThreshold int

	// Exempt users are never limited.
	Exempt map[string]bool
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
		BanDuration:       2 * time.Minute,
		BanThreshold:      5,
	}
}

// RateLimitResult is the outcome of one check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	IsBanned   bool
}

// RateLimiter implements per-user rate limiting.
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
	bans    map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type tokenBucket struct {
	tokens       float64
	lastRefill   time.Time
	violations   int
	lastViolated time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultRateLimitConfig().RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	rl := &RateLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
		bans:    make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// WithClock replaces the clock, for tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Check consumes one token for userID.
func (rl *RateLimiter) Check(userID string) RateLimitResult {
	if rl.config.Exempt[userID] {
		return RateLimitResult{Allowed: true}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()

	if until, ok := rl.bans[userID]; ok {
		if now.Before(until) {
			return RateLimitResult{RetryAfter: until.Sub(now), IsBanned: true}
		}
		delete(rl.bans, userID)
	}

	b, ok := rl.buckets[userID]
	if !ok {
		b = &tokenBucket{tokens: float64(rl.config.BurstSize), lastRefill: now}
		rl.buckets[userID] = b
	}

	rate := float64(rl.config.RequestsPerMinute) / 60.0
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if max := float64(rl.config.BurstSize); b.tokens > max {
		b.tokens = max
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return RateLimitResult{Allowed: true}
	}

	if now.Sub(b.lastViolated) > 5*time.Minute {
		b.violations = 0
	}
	b.violations++
	b.lastViolated = now
	if rl.config.BanThreshold > 0 && b.violations >= rl.config.BanThreshold {
		until := now.Add(rl.config.BanDuration)
		rl.bans[userID] = until
		return RateLimitResult{RetryAfter: rl.config.BanDuration, IsBanned: true}
	}

	wait := time.Duration((1 - b.tokens) / rate * float64(time.Second))
	return RateLimitResult{RetryAfter: wait}
}

// Reset clears the state of userID.
func (rl *RateLimiter) Reset(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, userID)
	delete(rl.bans, userID)
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops buckets idle for ten minutes and expired bans.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for id, b := range rl.buckets {
		if now.Sub(b.lastRefill) > 10*time.Minute {
			delete(rl.buckets, id)
		}
	}
	for id, until := range rl.bans {
		if !now.Before(until) {
			delete(rl.bans, id)
		}
	}
}
