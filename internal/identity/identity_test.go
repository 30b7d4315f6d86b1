package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/orbitdesk/ackrelay/internal/cache"
	"github.com/orbitdesk/ackrelay/internal/store"
)

// failingCache simulates an unavailable cache backend.
type failingCache struct{}

func (failingCache) Get(key string) (string, bool, error) {
	return "", false, errors.New("cache unavailable")
}

func (failingCache) Set(key, value string, ttl time.Duration) error {
	return errors.New("cache unavailable")
}

func TestCandidateFormsStructural(t *testing.T) {
	r := NewResolver(store.NewMemoryStore(), cache.NewMemory())

	forms, err := r.CandidateForms("553198765432")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(forms) != 2 || forms[0] != "553198765432" || forms[1] != "5531998765432" {
		t.Errorf("unexpected candidate set: %v", forms)
	}
}

func TestCandidateFormsNonBrazilian(t *testing.T) {
	r := NewResolver(store.NewMemoryStore(), cache.NewMemory())

	forms, err := r.CandidateForms("14155552671")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(forms) != 1 || forms[0] != "14155552671" {
		t.Errorf("non-brazilian identifier should only produce itself, got %v", forms)
	}
}

func TestCandidateFormsEmpty(t *testing.T) {
	r := NewResolver(store.NewMemoryStore(), cache.NewMemory())
	if _, err := r.CandidateForms(""); err == nil {
		t.Error("expected error for empty identifier")
	}
}

func TestLearnedPairTakesPriority(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewResolver(st, cache.NewMemory())

	phone := "553198765432"
	waID := "5531998765432"
	r.RecordMismatch(phone, waID)

	forms, err := r.CandidateForms(phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(forms) != 2 || forms[0] != phone || forms[1] != waID {
		t.Errorf("learned pair not returned exactly: %v", forms)
	}

	// The symmetric direction resolves through the other cache key.
	forms, err = r.CandidateForms(waID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(forms) != 2 || forms[0] != waID || forms[1] != phone {
		t.Errorf("symmetric lookup failed: %v", forms)
	}
}

func TestLearnedPairColdCache(t *testing.T) {
	st := store.NewMemoryStore()
	warm := NewResolver(st, cache.NewMemory())
	warm.RecordMismatch("553198765432", "5531998765432")

	// Fresh cache: resolution must fall through to the durable store.
	cold := NewResolver(st, cache.NewMemory())
	forms, err := cold.CandidateForms("553198765432")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(forms) != 2 || forms[1] != "5531998765432" {
		t.Errorf("durable fallback did not return learned pair: %v", forms)
	}
}

func TestRecordMismatchSurvivesCacheFailure(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewResolver(st, failingCache{})

	// Must not panic and must still attempt the durable insert.
	r.RecordMismatch("553198765432", "5531998765432")

	rec, err := st.FindMismatch("553198765432")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec.WaID != "5531998765432" {
		t.Error("durable insert was not performed despite cache failure")
	}
}

func TestCandidateFormsWithFailingCache(t *testing.T) {
	st := store.NewMemoryStore()
	if err := st.InsertMismatch("553198765432", "5531998765432"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := NewResolver(st, failingCache{})

	forms, err := r.CandidateForms("553198765432")
	if err != nil {
		t.Fatalf("cache failure must not fail resolution: %v", err)
	}
	if len(forms) != 2 || forms[1] != "5531998765432" {
		t.Errorf("expected learned pair via durable store, got %v", forms)
	}
}
