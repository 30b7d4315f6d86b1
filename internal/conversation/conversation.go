// Package conversation defines the contract ackrelay consumes from the
// conversation/activity service.
//
// Conversation persistence and business rules live outside this adapter;
// only the operations the ack pipeline and inbound resolution need are
// declared here.
package conversation

import (
	"context"

	"github.com/orbitdesk/ackrelay/internal/models"
)

// Service is the conversation/activity collaborator.
type Service interface {
	// FindParticipantByCandidateIDs returns the first participant of the
	// conversation whose identifier matches one of the candidate forms, in
	// candidate order, or nil when none match.
	FindParticipantByCandidateIDs(ctx context.Context, conversationID string, candidateIDs []string) (*models.Participant, error)

	// RecordMessageAck applies an acknowledgment code to the message tracked
	// under the given activity hash. Confirmation codes are monotonic: a
	// lower-confidence code never overwrites a higher one.
	RecordMessageAck(ctx context.Context, hash string, code models.AckCode) error

	// HighestAck returns the strongest confirmation code recorded for the
	// hash so far, and whether any code has been recorded at all.
	HighestAck(ctx context.Context, hash string) (models.AckCode, bool, error)

	// NotifyNumberLikelyInvalid signals that the phone number behind a
	// confirmed delivery error is probably unreachable.
	NotifyNumberLikelyInvalid(ctx context.Context, phoneNumber, channelConfigToken, ackCode string) error

	// NotifyMissingReceivedCheck asks downstream delivery tracking to
	// re-examine the recipient (e.g. flag a broadcast recipient as
	// unreachable).
	NotifyMissingReceivedCheck(ctx context.Context, phoneNumber, channelConfigToken, ackCode string) error
}
