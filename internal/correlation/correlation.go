// Package correlation links locally generated activity hashes with the
// message ids assigned by the provider.
//
// Resolution by provider id is the hot path: it is served from the TTL
// cache first and falls back to the durable store on a miss, repopulating
// the cache on the way out. The cache is best-effort throughout; only
// durable-store failures surface to callers.
package correlation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitdesk/ackrelay/internal/cache"
	"github.com/orbitdesk/ackrelay/internal/models"
	"github.com/orbitdesk/ackrelay/internal/store"
)

// Meta carries the optional context stored alongside a correlation.
type Meta struct {
	ConversationID     string
	WorkspaceID        string
	ChannelConfigToken string
}

// Correlator provides bidirectional hash <-> provider message id resolution.
type Correlator struct {
	repo  store.CorrelationRepo
	cache cache.Cache
	now   func() int64
}

// NewCorrelator creates a Correlator over the given repository and cache.
func NewCorrelator(repo store.CorrelationRepo, c cache.Cache) *Correlator {
	return &Correlator{repo: repo, cache: c, now: nowMillis}
}

// Record stores a new (hash, providerMessageID) pair. The cache entry is
// written first so the hot path warms immediately; the durable insert is
// idempotent and extends the cache's durability. A duplicate insert is a
// benign no-op.
func (c *Correlator) Record(hash, providerMessageID string, meta Meta) error {
	if hash == "" {
		return models.ErrEmptyHash
	}
	if providerMessageID == "" {
		return models.ErrEmptyProviderID
	}

	if err := c.cache.Set(cache.CorrelationKey(providerMessageID), hash, cache.CorrelationTTL); err != nil {
		slog.Warn("Correlator.Record: cache write failed", "error", err, "providerMessageID", providerMessageID)
	}

	rec := models.CorrelationRecord{
		Hash:               hash,
		ProviderMessageID:  providerMessageID,
		ChannelConfigToken: meta.ChannelConfigToken,
		ConversationID:     meta.ConversationID,
		WorkspaceID:        meta.WorkspaceID,
		CreatedAt:          c.now(),
	}
	if err := c.repo.InsertCorrelation(rec); err != nil {
		return fmt.Errorf("record correlation failed: %w", err)
	}
	slog.Debug("Correlator.Record", "hash", hash, "providerMessageID", providerMessageID)
	return nil
}

// HashByProviderID resolves the activity hash for a provider message id.
// Cache errors degrade to the durable store; store errors propagate.
// Returns models.ErrCorrelationNotFound when no mapping exists anywhere.
func (c *Correlator) HashByProviderID(providerMessageID string) (string, error) {
	if providerMessageID == "" {
		return "", models.ErrEmptyProviderID
	}

	key := cache.CorrelationKey(providerMessageID)
	if hash, found, err := c.cache.Get(key); err != nil {
		slog.Warn("Correlator.HashByProviderID: cache read failed, falling back to store", "error", err, "providerMessageID", providerMessageID)
	} else if found {
		return hash, nil
	}

	hash, err := c.repo.GetHashByProviderID(providerMessageID)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(key, hash, cache.CorrelationTTL); err != nil {
		slog.Warn("Correlator.HashByProviderID: cache repopulate failed", "error", err, "providerMessageID", providerMessageID)
	}
	return hash, nil
}

// ProviderIDByHash resolves the provider message id for an activity hash.
// This direction is called rarely and goes straight to the durable store.
func (c *Correlator) ProviderIDByHash(hash string) (string, error) {
	if hash == "" {
		return "", models.ErrEmptyHash
	}
	return c.repo.GetProviderIDByHash(hash)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
