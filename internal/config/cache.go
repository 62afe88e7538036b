package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the task list and stats cache.  Entries
// are keyed per user and dropped whenever one of that user's tasks changes;
// TTL bounds their life when an invalidation fails.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

func loadCache(e *env) CacheConfig {
	c := CacheConfig{
		Enabled:      e.flag("CACHE_ENABLED", true),
		Methods:      parseMethods(e.str("CACHE_METHODS", "GET")),
		TTL:          e.dur("CACHE_TTL", 30*time.Second),
		Prefix:       e.str("CACHE_PREFIX", "cache"),
		MaxBodyBytes: e.num("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	return c
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range splitList(s) {
		m[strings.ToUpper(p)] = true
	}
	return m
}
