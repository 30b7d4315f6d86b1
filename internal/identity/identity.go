// Package identity resolves which textual forms of a phone-derived
// identifier may refer to the same conversation participant.
//
// Resolution is two-tier: pairs the system has positively observed to
// diverge are learned once and served exactly; everything else falls back
// to the structural Brazilian mobile-"9" heuristic. Learning is best-effort
// enrichment and is never allowed to fail the message pipeline that
// triggered it.
package identity

import (
	"log/slog"

	"github.com/orbitdesk/ackrelay/internal/cache"
	"github.com/orbitdesk/ackrelay/internal/models"
	"github.com/orbitdesk/ackrelay/internal/store"
)

// Resolver produces candidate identifier forms and records observed mismatches.
type Resolver struct {
	repo  store.MismatchRepo
	cache cache.Cache
}

// NewResolver creates a Resolver over the given repository and cache.
func NewResolver(repo store.MismatchRepo, c cache.Cache) *Resolver {
	return &Resolver{repo: repo, cache: c}
}

// RecordMismatch stores an observed (phoneNumber, waId) divergence: both
// directional cache entries plus the durable row. Every failure is logged
// and swallowed; the durable insert is still attempted after a cache
// failure.
func (r *Resolver) RecordMismatch(phoneNumber, waID string) {
	if phoneNumber == "" || waID == "" {
		slog.Warn("Resolver.RecordMismatch: ignoring empty identity pair", "phoneNumber", phoneNumber, "waID", waID)
		return
	}

	key := NormalizeKey(phoneNumber)
	if err := r.cache.Set(cache.MismatchWaIDKey(key), waID, cache.MismatchTTL); err != nil {
		slog.Warn("Resolver.RecordMismatch: waId cache write failed", "error", err, "key", key)
	}
	if err := r.cache.Set(cache.MismatchPhoneKey(NormalizeKey(waID)), phoneNumber, cache.MismatchTTL); err != nil {
		slog.Warn("Resolver.RecordMismatch: phone cache write failed", "error", err, "key", NormalizeKey(waID))
	}

	if err := r.repo.InsertMismatch(phoneNumber, waID); err != nil {
		slog.Error("Resolver.RecordMismatch: durable insert failed", "error", err, "phoneNumber", phoneNumber, "waID", waID)
	} else {
		slog.Debug("Resolver.RecordMismatch: pair recorded", "phoneNumber", phoneNumber, "waID", waID)
	}
}

// CandidateForms returns the ordered candidate forms for an identifier.
// A learned pair takes priority and is returned exactly; otherwise the
// structural set (the form as given plus the "9"-toggled form, when one
// exists) is returned. The caller tests each candidate against known
// conversation participants until one matches.
func (r *Resolver) CandidateForms(id string) ([]string, error) {
	if id == "" {
		return nil, models.ErrEmptyIdentifier
	}

	if pair := r.lookupPair(id); pair != nil {
		return pair, nil
	}

	forms := []string{id}
	if toggled, ok := ToggleNine(id); ok {
		forms = append(forms, toggled)
	}
	return forms, nil
}

// lookupPair finds a learned mismatch pair for id, trying both cache
// directions before the durable store. Returns nil when nothing is known.
func (r *Resolver) lookupPair(id string) []string {
	key := NormalizeKey(id)

	if waID, found, err := r.cache.Get(cache.MismatchWaIDKey(key)); err != nil {
		slog.Warn("Resolver.lookupPair: waId cache read failed", "error", err, "key", key)
	} else if found && waID != id {
		return []string{id, waID}
	}

	if phone, found, err := r.cache.Get(cache.MismatchPhoneKey(key)); err != nil {
		slog.Warn("Resolver.lookupPair: phone cache read failed", "error", err, "key", key)
	} else if found && phone != id {
		return []string{id, phone}
	}

	rec, err := r.repo.FindMismatch(id)
	if err != nil {
		slog.Warn("Resolver.lookupPair: durable lookup failed, falling back to heuristic", "error", err, "id", id)
		return nil
	}
	if rec == nil {
		return nil
	}

	// Repopulate both cache directions for the next lookup.
	if err := r.cache.Set(cache.MismatchWaIDKey(NormalizeKey(rec.PhoneNumber)), rec.WaID, cache.MismatchTTL); err != nil {
		slog.Warn("Resolver.lookupPair: cache repopulate failed", "error", err)
	}
	if err := r.cache.Set(cache.MismatchPhoneKey(NormalizeKey(rec.WaID)), rec.PhoneNumber, cache.MismatchTTL); err != nil {
		slog.Warn("Resolver.lookupPair: cache repopulate failed", "error", err)
	}

	if rec.PhoneNumber == id {
		return []string{rec.PhoneNumber, rec.WaID}
	}
	return []string{rec.WaID, rec.PhoneNumber}
}
