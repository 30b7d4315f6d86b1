package ack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitdesk/ackrelay/internal/conversation"
	"github.com/orbitdesk/ackrelay/internal/correlation"
	"github.com/orbitdesk/ackrelay/internal/models"
	"github.com/orbitdesk/ackrelay/internal/store"
	"github.com/orbitdesk/ackrelay/internal/telemetry"
)

// Outcome is the terminal state of one delayed ack-error decision.
type Outcome string

const (
	// OutcomeConfirmedError means no stronger signal arrived: the error was
	// committed and the invalid-number callbacks fired.
	OutcomeConfirmedError Outcome = "confirmed_error"
	// OutcomeStaleDiscarded means a delivery-level ack landed first; the
	// delayed error was obsolete and nothing was applied.
	OutcomeStaleDiscarded Outcome = "stale_discarded"
	// OutcomeUnresolvable means no correlation exists anywhere for the
	// event's provider message id; the event was dropped.
	OutcomeUnresolvable Outcome = "discarded_unresolvable"
)

// Consumer re-validates delayed delivery-error events and commits them only
// when no stronger acknowledgment has arrived in the meantime.
//
// A single Consumer goroutine polls the queue per process, and the queue's
// claim step keeps concurrent processes from overlapping on the same event.
// That no-overlap guarantee is a correctness requirement: two workers could
// otherwise both observe "no delivery ack yet" before either commits.
type Consumer struct {
	queue          store.AckErrorQueue
	correlator     *correlation.Correlator
	correlations   store.CorrelationRepo
	conv           conversation.Service
	reporter       telemetry.Reporter
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
}

// NewConsumer creates a delayed ack-error consumer.
func NewConsumer(queue store.AckErrorQueue, correlator *correlation.Correlator, correlations store.CorrelationRepo, conv conversation.Service, reporter telemetry.Reporter, pollInterval time.Duration) *Consumer {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if reporter == nil {
		reporter = telemetry.NopReporter{}
	}
	return &Consumer{
		queue:          queue,
		correlator:     correlator,
		correlations:   correlations,
		conv:           conv,
		reporter:       reporter,
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
	}
}

// RecoverStale requeues events stuck in claimed state (crash recovery).
// Called once at startup and periodically by the maintenance scheduler.
func (c *Consumer) RecoverStale() error {
	staleBefore := time.Now().Add(-c.staleThreshold)
	n, err := c.queue.RequeueStaleAckErrors(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Consumer.RecoverStale: requeued stale events", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	slog.Info("Consumer.Run: starting delayed ack-error consumer", "pollInterval", c.pollInterval)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Consumer.Run: stopping")
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Consumer) poll(ctx context.Context) {
	now := time.Now()
	jobs, err := c.queue.ClaimDueAckErrors(now, c.claimLimit)
	if err != nil {
		slog.Error("Consumer.poll: claim failed", "error", err)
		return
	}

	for _, job := range jobs {
		c.handle(ctx, job)
	}
}

// handle decides one claimed event. Every path completes the event: the
// delay-then-decide semantics already embody the retry, and a stale
// decision later is worse than no decision, so there is no redelivery loop.
func (c *Consumer) handle(ctx context.Context, job store.AckErrorJob) {
	defer func() {
		if r := recover(); r != nil {
			delayedConsumerOutcomeCounter.WithLabelValues(outcomeFailed).Inc()
			slog.Error("Consumer.handle: panic during decision pipeline, dropping event", "id", job.ID, "panic", r)
		}
		if err := c.queue.CompleteAckError(job.ID); err != nil {
			slog.Error("Consumer.handle: complete event failed", "id", job.ID, "error", err)
		}
	}()

	var event models.AckErrorEvent
	if err := json.Unmarshal([]byte(job.PayloadJSON), &event); err != nil {
		delayedConsumerOutcomeCounter.WithLabelValues(outcomeFailed).Inc()
		slog.Error("Consumer.handle: undecodable payload, dropping event", "id", job.ID, "error", err)
		return
	}

	outcome, err := c.Decide(ctx, event)
	if err != nil {
		delayedConsumerOutcomeCounter.WithLabelValues(outcomeFailed).Inc()
		c.reporter.Capture(telemetry.EventAckErrorPipelineError, map[string]string{
			"provider_message_id": event.ProviderMessageID,
			"error":               err.Error(),
		})
		slog.Error("Consumer.handle: decision pipeline failed, dropping event", "id", job.ID, "error", err)
		return
	}
	slog.Info("Consumer.handle: event decided", "id", job.ID, "providerMessageID", event.ProviderMessageID, "outcome", string(outcome))
}

// Decide runs the decision pipeline for a single delayed ack-error event:
// resolve the hash, check for a stronger competing signal, and only then
// commit the error and fire the downstream callbacks.
func (c *Consumer) Decide(ctx context.Context, event models.AckErrorEvent) (Outcome, error) {
	hash, err := c.resolveHash(event.ProviderMessageID)
	if err != nil {
		if errors.Is(err, models.ErrCorrelationNotFound) {
			// Expected under heavy load: the correlation write may never have
			// landed. Not fatal, observed and dropped.
			delayedConsumerOutcomeCounter.WithLabelValues(outcomeUnresolvable).Inc()
			c.reporter.Capture(telemetry.EventAckErrorUnresolvable, map[string]string{
				"provider_message_id": event.ProviderMessageID,
				"phone_number":        event.PhoneNumber,
			})
			return OutcomeUnresolvable, nil
		}
		return "", fmt.Errorf("resolve hash for delayed error failed: %w", err)
	}

	// Staleness guard: this must run after resolution and strictly before
	// the commit, or the whole delayed mechanism is pointless.
	highest, found, err := c.conv.HighestAck(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("query highest ack failed: %w", err)
	}
	if found && highest.Confirms(models.AckCodeDeliveryAck) {
		delayedConsumerOutcomeCounter.WithLabelValues(outcomeStale).Inc()
		c.reporter.Capture(telemetry.EventAckErrorStaleDiscard, map[string]string{
			"provider_message_id": event.ProviderMessageID,
			"hash":                hash,
			"highest_ack":         highest.String(),
		})
		return OutcomeStaleDiscarded, nil
	}

	if err := c.conv.RecordMessageAck(ctx, hash, models.AckCodeError); err != nil {
		return "", fmt.Errorf("commit error ack failed: %w", err)
	}

	code := event.AckCode.String()
	if err := c.conv.NotifyNumberLikelyInvalid(ctx, event.PhoneNumber, event.ChannelConfigToken, code); err != nil {
		slog.Error("Consumer.Decide: number-invalid notification failed", "error", err, "hash", hash)
	}
	if err := c.conv.NotifyMissingReceivedCheck(ctx, event.PhoneNumber, event.ChannelConfigToken, code); err != nil {
		slog.Error("Consumer.Decide: missing-received notification failed", "error", err, "hash", hash)
	}

	delayedConsumerOutcomeCounter.WithLabelValues(outcomeConfirmed).Inc()
	return OutcomeConfirmedError, nil
}

// resolveHash resolves via the correlator (cache, then durable store) and,
// when both report not-found, makes one direct store read. The extra read
// covers the race where the correlation write had not yet landed at first
// attempt; there is no artificial wait between the lookups.
func (c *Consumer) resolveHash(providerMessageID string) (string, error) {
	hash, err := c.correlator.HashByProviderID(providerMessageID)
	if err == nil {
		return hash, nil
	}
	if !errors.Is(err, models.ErrCorrelationNotFound) {
		return "", err
	}
	return c.correlations.GetHashByProviderID(providerMessageID)
}
