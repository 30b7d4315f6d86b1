package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval controls how often expired entries are purged.
const DefaultCleanupInterval = 10 * time.Minute

// Memory is a process-local TTL cache backed by go-cache.
type Memory struct {
	c *gocache.Cache
}

// Compile-time check that Memory implements Cache.
var _ Cache = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, DefaultCleanupInterval)}
}

// Get returns the cached value for key, if present and unexpired.
func (m *Memory) Get(key string) (string, bool, error) {
	v, found := m.c.Get(key)
	if !found {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

// Set stores value under key for the given TTL.
func (m *Memory) Set(key, value string, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}
