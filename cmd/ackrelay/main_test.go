package main

import (
	"context"
	"testing"
	"time"

	"github.com/orbitdesk/ackrelay/internal/ack"
	"github.com/orbitdesk/ackrelay/internal/cache"
	"github.com/orbitdesk/ackrelay/internal/conversation"
	"github.com/orbitdesk/ackrelay/internal/correlation"
	"github.com/orbitdesk/ackrelay/internal/identity"
	"github.com/orbitdesk/ackrelay/internal/models"
	"github.com/orbitdesk/ackrelay/internal/store"
	"github.com/orbitdesk/ackrelay/internal/whatsapp"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPumpAcksAppliesReceipts(t *testing.T) {
	st := store.NewMemoryStore()
	conv := conversation.NewMemoryService()
	correlator := correlation.NewCorrelator(st, cache.NewMemory())
	updater := ack.NewUpdater(correlator, conv, st, 0)

	if err := correlator.Record("hash-1", "wamid.ABC", correlation.Meta{ChannelConfigToken: "tok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acks := make(chan whatsapp.AckSignal, 1)
	acks <- whatsapp.AckSignal{
		ProviderMessageID: "wamid.ABC",
		Code:              models.AckCodeDeliveryAck,
		PhoneNumber:       "5531998765432",
		Timestamp:         time.Now().Unix(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pumpAcks(ctx, acks, updater, "tok")
		close(done)
	}()

	waitFor(t, func() bool {
		highest, found, _ := conv.HighestAck(context.Background(), "hash-1")
		return found && highest == models.AckCodeDeliveryAck
	}, "receipt was not applied to the correlated hash")

	cancel()
	<-done
}

func TestPumpInboundLearnsMismatch(t *testing.T) {
	st := store.NewMemoryStore()
	conv := conversation.NewMemoryService()
	resolver := identity.NewResolver(st, cache.NewMemory())

	// Participant tracked in the 12-digit form; provider sends 13 digits.
	conv.AddParticipant(models.Participant{ID: "p1", ConversationID: "5531998765432", PhoneNumber: "553198765432"})

	msgs := make(chan whatsapp.Inbound, 1)
	msgs <- whatsapp.Inbound{
		ProviderMessageID: "wamid.MSG",
		ConversationID:    "5531998765432",
		PhoneNumber:       "5531998765432",
		Body:              "oi",
		Timestamp:         time.Now().Unix(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pumpInbound(ctx, msgs, resolver, conv)
		close(done)
	}()

	waitFor(t, func() bool {
		rec, err := st.FindMismatch("5531998765432")
		return err == nil && rec != nil && rec.PhoneNumber == "553198765432"
	}, "inbound message did not teach the identity pair")

	cancel()
	<-done
}

func TestPumpInboundExactMatchLearnsNothing(t *testing.T) {
	st := store.NewMemoryStore()
	conv := conversation.NewMemoryService()
	resolver := identity.NewResolver(st, cache.NewMemory())
	conv.AddParticipant(models.Participant{ID: "p1", ConversationID: "5531998765432", PhoneNumber: "5531998765432"})

	msgs := make(chan whatsapp.Inbound, 1)
	msgs <- whatsapp.Inbound{
		ProviderMessageID: "wamid.MSG",
		ConversationID:    "5531998765432",
		PhoneNumber:       "5531998765432",
		Body:              "oi",
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pumpInbound(ctx, msgs, resolver, conv)
		close(done)
	}()

	waitFor(t, func() bool { return len(msgs) == 0 }, "inbound message was not consumed")
	time.Sleep(20 * time.Millisecond)

	rec, err := st.FindMismatch("5531998765432")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("exact match must not record a mismatch, got %+v", rec)
	}

	cancel()
	<-done
}
