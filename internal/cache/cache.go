// Package cache provides the best-effort TTL cache used on the hot ack
// resolution and identity lookup paths.
//
// Cache entries are a performance optimization only: every caller must
// behave correctly with the cache entirely absent, and a cache failure is
// never allowed to fail the operation that touched it.
package cache

import "time"

// TTLs for the cache entry families.
const (
	// CorrelationTTL bounds how long a provider-id to hash mapping stays hot.
	CorrelationTTL = 24 * time.Hour
	// MismatchTTL bounds how long a learned identity pair stays hot.
	MismatchTTL = 48 * time.Hour
)

// Key prefixes for the cache entry families.
const (
	correlationPrefix   = "GSID:"
	mismatchWaIDPrefix  = "MISMATCH_WAID:"
	mismatchPhonePrefix = "MISMATCH_PHONE_NUMBER:"
)

// Cache is the minimal key-value contract the core needs. Implementations
// may be process-local or networked; callers treat every error as a miss.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores value under key with the given TTL.
	Set(key, value string, ttl time.Duration) error
}

// CorrelationKey builds the cache key for a provider-id to hash entry.
func CorrelationKey(providerMessageID string) string {
	return correlationPrefix + providerMessageID
}

// MismatchWaIDKey builds the cache key that resolves a normalized
// identifier to its provider-side (waId) form.
func MismatchWaIDKey(normalizedKey string) string {
	return mismatchWaIDPrefix + normalizedKey
}

// MismatchPhoneKey builds the cache key that resolves a normalized
// identifier to its locally stored phone-number form.
func MismatchPhoneKey(normalizedKey string) string {
	return mismatchPhonePrefix + normalizedKey
}
