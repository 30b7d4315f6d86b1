// Package store provides storage backends for ackrelay.
//
// This file implements an in-memory store used by tests and local runs.
package store

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/orbitdesk/ackrelay/internal/models"
	"github.com/orbitdesk/ackrelay/internal/util"
)

// MemoryStore is a mutex-guarded in-memory implementation of Store.
type MemoryStore struct {
	mu           sync.Mutex
	byHash       map[string]models.CorrelationRecord
	byProviderID map[string]models.CorrelationRecord
	mismatches   []models.MismatchRecord
	queue        map[string]*AckErrorJob
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash:       make(map[string]models.CorrelationRecord),
		byProviderID: make(map[string]models.CorrelationRecord),
		queue:        make(map[string]*AckErrorJob),
	}
}

func (s *MemoryStore) InsertCorrelation(rec models.CorrelationRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[rec.Hash]; ok {
		return nil
	}
	if _, ok := s.byProviderID[rec.ProviderMessageID]; ok {
		return nil
	}
	s.byHash[rec.Hash] = rec
	s.byProviderID[rec.ProviderMessageID] = rec
	return nil
}

func (s *MemoryStore) GetHashByProviderID(providerMessageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byProviderID[providerMessageID]
	if !ok {
		return "", models.ErrCorrelationNotFound
	}
	return rec.Hash, nil
}

func (s *MemoryStore) GetProviderIDByHash(hash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[hash]
	if !ok {
		return "", models.ErrCorrelationNotFound
	}
	return rec.ProviderMessageID, nil
}

func (s *MemoryStore) InsertMismatch(phoneNumber, waID string) error {
	if phoneNumber == "" || waID == "" {
		return models.ErrEmptyIdentifier
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mismatches {
		if m.PhoneNumber == phoneNumber && m.WaID == waID {
			return nil
		}
	}
	s.mismatches = append(s.mismatches, models.MismatchRecord{
		PhoneNumber: phoneNumber,
		WaID:        waID,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (s *MemoryStore) FindMismatch(form string) (*models.MismatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mismatches {
		if m.PhoneNumber == form || m.WaID == form {
			rec := m
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) EnqueueAckError(event models.AckErrorEvent, runAt time.Time) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.queue {
		if j.ProviderMessageID == event.ProviderMessageID && j.Status != AckErrorStatusDone {
			return j.ID, nil
		}
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	now := time.Now()
	job := &AckErrorJob{
		ID:                util.GenerateEventID(),
		ProviderMessageID: event.ProviderMessageID,
		PayloadJSON:       string(payload),
		Status:            AckErrorStatusQueued,
		RunAt:             runAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.queue[job.ID] = job
	return job.ID, nil
}

func (s *MemoryStore) ClaimDueAckErrors(now time.Time, limit int) ([]AckErrorJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*AckErrorJob
	for _, j := range s.queue {
		if j.Status == AckErrorStatusQueued && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].RunAt.Before(due[k].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	claimed := make([]AckErrorJob, 0, len(due))
	for _, j := range due {
		claimedAt := now
		j.Status = AckErrorStatusClaimed
		j.ClaimedAt = &claimedAt
		j.UpdatedAt = now
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

func (s *MemoryStore) CompleteAckError(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.queue[id]; ok {
		j.Status = AckErrorStatusDone
		j.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) RequeueStaleAckErrors(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.queue {
		if j.Status == AckErrorStatusClaimed && j.ClaimedAt != nil && j.ClaimedAt.Before(staleBefore) {
			j.Status = AckErrorStatusQueued
			j.ClaimedAt = nil
			j.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
