// Package models defines the core data structures for ackrelay.
//
// It includes the provider acknowledgment codes, the correlation and
// identity-mismatch records, and the delayed ack-error event payload,
// which are shared across modules.
package models

import (
	"errors"
	"time"
)

// AckCode is a provider-reported confirmation level for an outbound message.
//
// Sent, DeliveryAck and ReadAck form a strictly increasing confirmation
// order. Error is a separate branch and never participates in that order;
// it is only committed through the delayed validation path.
type AckCode int

const (
	// AckCodeSent means the provider accepted the message for delivery.
	AckCodeSent AckCode = iota + 1
	// AckCodeDeliveryAck means the provider confirmed delivery to the device.
	AckCodeDeliveryAck
	// AckCodeReadAck means the recipient read the message.
	AckCodeReadAck
	// AckCodeError means the provider reported a delivery failure.
	AckCodeError AckCode = -1
)

// Validation and sentinel errors shared across modules.
var (
	ErrCorrelationNotFound = errors.New("correlation not found")
	ErrEmptyHash           = errors.New("activity hash cannot be empty")
	ErrEmptyProviderID     = errors.New("provider message id cannot be empty")
	ErrEmptyChannelToken   = errors.New("channel config token cannot be empty")
	ErrEmptyIdentifier     = errors.New("identifier cannot be empty")
	ErrInvalidAckCode      = errors.New("invalid ack code")
)

// String returns the wire name of the ack code.
func (c AckCode) String() string {
	switch c {
	case AckCodeSent:
		return "sent"
	case AckCodeDeliveryAck:
		return "delivered"
	case AckCodeReadAck:
		return "read"
	case AckCodeError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseAckCode converts a wire name into an AckCode.
func ParseAckCode(s string) (AckCode, error) {
	switch s {
	case "sent":
		return AckCodeSent, nil
	case "delivered":
		return AckCodeDeliveryAck, nil
	case "read":
		return AckCodeReadAck, nil
	case "error":
		return AckCodeError, nil
	default:
		return 0, ErrInvalidAckCode
	}
}

// IsValid reports whether the code is one of the known values.
func (c AckCode) IsValid() bool {
	switch c {
	case AckCodeSent, AckCodeDeliveryAck, AckCodeReadAck, AckCodeError:
		return true
	default:
		return false
	}
}

// Confirms reports whether c is a confirmation at least as strong as other.
// Comparison is by ordinal; Error never confirms anything and is never
// confirmed by anything.
func (c AckCode) Confirms(other AckCode) bool {
	if c == AckCodeError || other == AckCodeError {
		return false
	}
	return c >= other
}

// CorrelationRecord maps a locally generated activity hash to the message id
// assigned by the provider. Records are append-only: once written, a hash
// maps to exactly one provider message id and vice versa, and the row is
// never mutated or deleted.
type CorrelationRecord struct {
	Hash               string `json:"hash"`
	ProviderMessageID  string `json:"provider_message_id"`
	ChannelConfigToken string `json:"channel_config_token"`
	ConversationID     string `json:"conversation_id,omitempty"`
	WorkspaceID        string `json:"workspace_id,omitempty"`
	CreatedAt          int64  `json:"created_at"` // epoch millis
}

// Validate checks the required fields of a correlation record.
func (r *CorrelationRecord) Validate() error {
	if r.Hash == "" {
		return ErrEmptyHash
	}
	if r.ProviderMessageID == "" {
		return ErrEmptyProviderID
	}
	if r.ChannelConfigToken == "" {
		return ErrEmptyChannelToken
	}
	return nil
}

// MismatchRecord captures two textual forms of the same end-user phone
// identity that the provider has been observed to use inconsistently.
// The pair is symmetric: either field may be the lookup key for the other.
type MismatchRecord struct {
	PhoneNumber string    `json:"phone_number"`
	WaID        string    `json:"wa_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// AckErrorEvent is the delayed delivery-error payload. It exists only in
// flight, between the moment an Error ack is routed to the delay queue and
// the moment the delayed consumer decides its fate.
type AckErrorEvent struct {
	AckCode            AckCode `json:"ack_code"`
	ChannelConfigToken string  `json:"channel_config_token"`
	ProviderMessageID  string  `json:"provider_message_id"`
	WorkspaceID        string  `json:"workspace_id,omitempty"`
	Timestamp          int64   `json:"timestamp"`
	PhoneNumber        string  `json:"phone_number,omitempty"`
}

// Validate checks the required fields of an ack-error event.
func (e *AckErrorEvent) Validate() error {
	if e.ProviderMessageID == "" {
		return ErrEmptyProviderID
	}
	if e.ChannelConfigToken == "" {
		return ErrEmptyChannelToken
	}
	if !e.AckCode.IsValid() {
		return ErrInvalidAckCode
	}
	return nil
}

// Participant is a conversation member as tracked by the conversation
// service. Only the identifiers relevant to inbound resolution are carried.
type Participant struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	PhoneNumber    string `json:"phone_number"`
}

// EpochMillis converts a time to the integer epoch-millisecond form used
// by correlation records.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
