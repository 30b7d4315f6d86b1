package ack

import (
	"context"
	"testing"
	"time"

	"github.com/orbitdesk/ackrelay/internal/cache"
	"github.com/orbitdesk/ackrelay/internal/conversation"
	"github.com/orbitdesk/ackrelay/internal/correlation"
	"github.com/orbitdesk/ackrelay/internal/models"
	"github.com/orbitdesk/ackrelay/internal/store"
	"github.com/orbitdesk/ackrelay/internal/telemetry"
)

// captureReporter records telemetry events for assertions.
type captureReporter struct {
	events []string
}

func (r *captureReporter) Capture(event string, attrs map[string]string) {
	r.events = append(r.events, event)
}

func newTestConsumer(t *testing.T) (*Consumer, *store.MemoryStore, *conversation.MemoryService, *correlation.Correlator, *captureReporter) {
	t.Helper()
	st := store.NewMemoryStore()
	conv := conversation.NewMemoryService()
	corr := correlation.NewCorrelator(st, cache.NewMemory())
	rep := &captureReporter{}
	c := NewConsumer(st, corr, st, conv, rep, time.Second)
	return c, st, conv, corr, rep
}

func errorEvent(providerID, phone string) models.AckErrorEvent {
	return models.AckErrorEvent{
		AckCode:            models.AckCodeError,
		ChannelConfigToken: "tok",
		ProviderMessageID:  providerID,
		Timestamp:          time.Now().UnixMilli(),
		PhoneNumber:        phone,
	}
}

func TestDecideConfirmedError(t *testing.T) {
	c, _, conv, corr, _ := newTestConsumer(t)
	ctx := context.Background()

	if err := corr.Record("hash-1", "wamid.ERR", correlation.Meta{ChannelConfigToken: "tok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only a sent-level ack exists; not strong enough to veto the error.
	if err := conv.RecordMessageAck(ctx, "hash-1", models.AckCodeSent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := c.Decide(ctx, errorEvent("wamid.ERR", "553198765432"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeConfirmedError {
		t.Errorf("expected confirmed error, got %s", outcome)
	}
	if !conv.HasErrorAck("hash-1") {
		t.Error("expected error to be committed")
	}

	// Both downstream callbacks fire exactly once.
	notes := conv.Notifications()
	if len(notes) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notes))
	}
	kinds := map[string]int{}
	for _, n := range notes {
		kinds[n.Kind]++
		if n.PhoneNumber != "553198765432" || n.ChannelConfigToken != "tok" || n.AckCode != "error" {
			t.Errorf("unexpected notification payload: %+v", n)
		}
	}
	if kinds["number_likely_invalid"] != 1 || kinds["missing_received_check"] != 1 {
		t.Errorf("unexpected notification kinds: %v", kinds)
	}
}

func TestDecideStaleDiscarded(t *testing.T) {
	c, _, conv, corr, rep := newTestConsumer(t)
	ctx := context.Background()

	if err := corr.Record("hash-1", "wamid.ERR", correlation.Meta{ChannelConfigToken: "tok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A delivery ack landed during the delay window.
	if err := conv.RecordMessageAck(ctx, "hash-1", models.AckCodeDeliveryAck); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := c.Decide(ctx, errorEvent("wamid.ERR", "553198765432"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeStaleDiscarded {
		t.Errorf("expected stale discard, got %s", outcome)
	}
	if conv.HasErrorAck("hash-1") {
		t.Error("stale error must not be committed")
	}
	if len(conv.Notifications()) != 0 {
		t.Errorf("stale discard must not notify, got %v", conv.Notifications())
	}
	if len(rep.events) != 1 || rep.events[0] != telemetry.EventAckErrorStaleDiscard {
		t.Errorf("expected stale-discard telemetry, got %v", rep.events)
	}

	// The final state is still the delivery ack.
	highest, found, _ := conv.HighestAck(ctx, "hash-1")
	if !found || highest != models.AckCodeDeliveryAck {
		t.Errorf("expected delivered to survive, got %v found=%v", highest, found)
	}
}

func TestDecideReadAckAlsoVetoes(t *testing.T) {
	c, _, conv, corr, _ := newTestConsumer(t)
	ctx := context.Background()

	if err := corr.Record("hash-1", "wamid.ERR", correlation.Meta{ChannelConfigToken: "tok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := conv.RecordMessageAck(ctx, "hash-1", models.AckCodeReadAck); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := c.Decide(ctx, errorEvent("wamid.ERR", "553198765432"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeStaleDiscarded {
		t.Errorf("expected stale discard for read ack, got %s", outcome)
	}
}

func TestDecideUnresolvable(t *testing.T) {
	c, _, conv, _, rep := newTestConsumer(t)

	outcome, err := c.Decide(context.Background(), errorEvent("wamid.NEVER", "553198765432"))
	if err != nil {
		t.Fatalf("unresolvable must not be an error: %v", err)
	}
	if outcome != OutcomeUnresolvable {
		t.Errorf("expected unresolvable, got %s", outcome)
	}
	if len(conv.Notifications()) != 0 {
		t.Error("unresolvable must not trigger callbacks")
	}
	if len(rep.events) != 1 || rep.events[0] != telemetry.EventAckErrorUnresolvable {
		t.Errorf("expected unresolvable telemetry, got %v", rep.events)
	}
}

func TestPollCompletesEveryEvent(t *testing.T) {
	c, st, conv, corr, _ := newTestConsumer(t)
	ctx := context.Background()

	if err := corr.Record("hash-1", "wamid.ERR1", correlation.Meta{ChannelConfigToken: "tok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// wamid.ERR2 stays uncorrelated on purpose.
	if _, err := st.EnqueueAckError(errorEvent("wamid.ERR1", "553198765432"), time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := st.EnqueueAckError(errorEvent("wamid.ERR2", "553198765432"), time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.poll(ctx)

	if !conv.HasErrorAck("hash-1") {
		t.Error("expected correlated event committed as error")
	}

	// Both events are terminal: nothing is claimable now or later.
	jobs, err := st.ClaimDueAckErrors(time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected all events completed, found %d claimable", len(jobs))
	}
}

func TestRecoverStaleRequeues(t *testing.T) {
	c, st, _, _, _ := newTestConsumer(t)
	now := time.Now()

	if _, err := st.EnqueueAckError(errorEvent("wamid.ERR1", ""), now.Add(-time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Claim at a point far enough in the past to look abandoned.
	if _, err := st.ClaimDueAckErrors(now.Add(-time.Hour), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.RecoverStale(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs, err := st.ClaimDueAckErrors(now, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected stale event requeued and claimable, got %d", len(jobs))
	}
}
