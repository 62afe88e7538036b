package config

import (
	"fmt"
	"time"
)

// RateLimitConfig drives the Redis token bucket in front of the auth routes.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

func loadRateLimit(e *env) RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        e.flag("RATE_LIMIT_ENABLED", true),
		Capacity:       e.num("RATE_LIMIT_CAPACITY", 20),
		RefillTokens:   e.num("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: e.dur("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),
		TTL:            e.dur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    e.str("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         e.str("RATE_LIMIT_PREFIX", "rl"),
		Debug:          e.flag("RATE_LIMIT_DEBUG", false),
	}
	if b := e.num("RATE_LIMIT_BURST", -1); b > 0 {
		rl.Capacity = b
	}
	if every := e.dur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		rl.RefillTokens = 1
		rl.RefillInterval = every
	}
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}

func (e *env) dur(k string, d time.Duration) time.Duration {
	v, ok := e.get(k)
	if !ok {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid duration for %s: %q", k, v))
		return d
	}
	return dur
}
