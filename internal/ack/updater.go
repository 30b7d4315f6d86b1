// Package ack reconciles provider delivery acknowledgments with locally
// tracked messages.
//
// Confirmation acks (sent, delivered, read) are applied immediately and
// monotonically. Error acks are never applied on arrival: they are routed
// onto a durable delay queue and re-validated by the delayed consumer once
// a competing success signal has had a fair chance to land first.
package ack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitdesk/ackrelay/internal/conversation"
	"github.com/orbitdesk/ackrelay/internal/correlation"
	"github.com/orbitdesk/ackrelay/internal/models"
	"github.com/orbitdesk/ackrelay/internal/store"
)

// DefaultErrorDelay is how long an error ack waits in the delay queue
// before it is re-validated. Tuned per deployment via configuration.
const DefaultErrorDelay = 30 * time.Second

// Webhook is one provider acknowledgment callback.
type Webhook struct {
	ProviderMessageID  string         `json:"provider_message_id"`
	AckCode            models.AckCode `json:"-"`
	ChannelConfigToken string         `json:"channel_config_token"`
	Hash               string         `json:"hash,omitempty"` // explicit hash, skips resolution when set
	WorkspaceID        string         `json:"workspace_id,omitempty"`
	PhoneNumber        string         `json:"phone_number,omitempty"`
	Timestamp          int64          `json:"timestamp"`
}

// Updater applies acknowledgment codes to correlated local messages.
type Updater struct {
	correlator *correlation.Correlator
	conv       conversation.Service
	queue      store.AckErrorQueue
	errorDelay time.Duration
}

// NewUpdater creates an Updater. delay controls how long error acks wait
// before re-validation; zero or negative falls back to DefaultErrorDelay.
func NewUpdater(correlator *correlation.Correlator, conv conversation.Service, queue store.AckErrorQueue, delay time.Duration) *Updater {
	if delay <= 0 {
		delay = DefaultErrorDelay
	}
	return &Updater{correlator: correlator, conv: conv, queue: queue, errorDelay: delay}
}

// ApplyAck resolves the activity hash for a webhook and records the ack.
// Error codes are enqueued for delayed validation instead of committed.
// The resolved hash is returned so callers can chain follow-up signals.
// Returns models.ErrCorrelationNotFound when no hash can be resolved.
func (u *Updater) ApplyAck(ctx context.Context, wh Webhook) (string, error) {
	if !wh.AckCode.IsValid() {
		return "", models.ErrInvalidAckCode
	}

	hash := wh.Hash
	if hash == "" {
		var err error
		hash, err = u.correlator.HashByProviderID(wh.ProviderMessageID)
		if err != nil {
			if errors.Is(err, models.ErrCorrelationNotFound) {
				slog.Warn("Updater.ApplyAck: no correlation for provider message id", "providerMessageID", wh.ProviderMessageID, "code", wh.AckCode.String())
				return "", err
			}
			return "", fmt.Errorf("resolve hash for ack failed: %w", err)
		}
	}

	if wh.AckCode == models.AckCodeError {
		// Deliberately not applied here: a success signal may still be in
		// flight. The delayed consumer makes the final call.
		event := models.AckErrorEvent{
			AckCode:            wh.AckCode,
			ChannelConfigToken: wh.ChannelConfigToken,
			ProviderMessageID:  wh.ProviderMessageID,
			WorkspaceID:        wh.WorkspaceID,
			Timestamp:          wh.Timestamp,
			PhoneNumber:        wh.PhoneNumber,
		}
		runAt := time.Now().Add(u.errorDelay)
		if _, err := u.queue.EnqueueAckError(event, runAt); err != nil {
			return "", fmt.Errorf("enqueue delayed ack error failed: %w", err)
		}
		ackErrorsEnqueuedCounter.Inc()
		slog.Info("Updater.ApplyAck: error ack routed to delay queue", "providerMessageID", wh.ProviderMessageID, "hash", hash, "runAt", runAt)
		return hash, nil
	}

	if err := u.conv.RecordMessageAck(ctx, hash, wh.AckCode); err != nil {
		return "", fmt.Errorf("record message ack failed: %w", err)
	}
	ackEventsAppliedCounter.WithLabelValues(wh.AckCode.String()).Inc()
	slog.Debug("Updater.ApplyAck: ack recorded", "hash", hash, "code", wh.AckCode.String())
	return hash, nil
}
