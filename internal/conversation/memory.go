package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/orbitdesk/ackrelay/internal/models"
)

// Notification is a captured invalid-number or missing-received signal.
type Notification struct {
	Kind               string
	PhoneNumber        string
	ChannelConfigToken string
	AckCode            string
}

// MemoryService is an in-process reference implementation of Service used
// for local runs and tests. It tracks the highest ack per hash, holds a
// static participant roster, and records notifications instead of
// forwarding them.
type MemoryService struct {
	mu            sync.Mutex
	acks          map[string]models.AckCode
	errAcks       map[string]bool
	participants  map[string][]models.Participant
	notifications []Notification
}

// Compile-time check that MemoryService implements Service.
var _ Service = (*MemoryService)(nil)

// NewMemoryService creates an empty in-memory conversation service.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		acks:         make(map[string]models.AckCode),
		errAcks:      make(map[string]bool),
		participants: make(map[string][]models.Participant),
	}
}

// AddParticipant registers a participant for lookup tests and local runs.
func (s *MemoryService) AddParticipant(p models.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ConversationID] = append(s.participants[p.ConversationID], p)
}

func (s *MemoryService) FindParticipantByCandidateIDs(ctx context.Context, conversationID string, candidateIDs []string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range candidateIDs {
		for _, p := range s.participants[conversationID] {
			if p.PhoneNumber == id {
				match := p
				return &match, nil
			}
		}
	}
	return nil, nil
}

func (s *MemoryService) RecordMessageAck(ctx context.Context, hash string, code models.AckCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == models.AckCodeError {
		s.errAcks[hash] = true
		slog.Debug("MemoryService.RecordMessageAck: error committed", "hash", hash)
		return nil
	}
	if current, ok := s.acks[hash]; !ok || code > current {
		s.acks[hash] = code
		slog.Debug("MemoryService.RecordMessageAck", "hash", hash, "code", code.String())
	}
	return nil
}

func (s *MemoryService) HighestAck(ctx context.Context, hash string) (models.AckCode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.acks[hash]
	return code, ok, nil
}

// HasErrorAck reports whether an error was committed for the hash.
func (s *MemoryService) HasErrorAck(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errAcks[hash]
}

func (s *MemoryService) NotifyNumberLikelyInvalid(ctx context.Context, phoneNumber, channelConfigToken, ackCode string) error {
	s.capture(Notification{Kind: "number_likely_invalid", PhoneNumber: phoneNumber, ChannelConfigToken: channelConfigToken, AckCode: ackCode})
	return nil
}

func (s *MemoryService) NotifyMissingReceivedCheck(ctx context.Context, phoneNumber, channelConfigToken, ackCode string) error {
	s.capture(Notification{Kind: "missing_received_check", PhoneNumber: phoneNumber, ChannelConfigToken: channelConfigToken, AckCode: ackCode})
	return nil
}

// Notifications returns a copy of the captured notifications.
func (s *MemoryService) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func (s *MemoryService) capture(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	slog.Info("MemoryService notification captured", "kind", n.Kind, "phoneNumber", n.PhoneNumber)
}
