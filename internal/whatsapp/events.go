package whatsapp

import (
	"context"
	"log/slog"
	"time"

	"github.com/orbitdesk/ackrelay/internal/models"
	"go.mau.fi/whatsmeow/types/events"
)

// Constants for event bridge configuration
const (
	// DefaultChannelBufferSize defines the buffer size for ack and inbound channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the timeout for non-blocking channel sends
	DefaultChannelTimeout = 1 * time.Second
)

// AckSignal is a provider receipt translated into channel-agnostic form.
type AckSignal struct {
	ProviderMessageID string
	Code              models.AckCode
	PhoneNumber       string // sender identity as the provider reported it (wa_id form)
	Timestamp         int64
}

// Inbound is a provider message translated into channel-agnostic form.
type Inbound struct {
	ProviderMessageID string
	ConversationID    string // chat the message arrived in
	PhoneNumber       string // sender identity as the provider reported it (wa_id form)
	Body              string
	Timestamp         int64
}

// EventBridge registers on the underlying whatsmeow client and fans provider
// events out onto typed channels for the ack pipeline and inbound resolution.
type EventBridge struct {
	client  *Client
	acks    chan AckSignal
	inbound chan Inbound
}

// NewEventBridge creates an event bridge over a connected client.
func NewEventBridge(client *Client) *EventBridge {
	return &EventBridge{
		client:  client,
		acks:    make(chan AckSignal, DefaultChannelBufferSize),
		inbound: make(chan Inbound, DefaultChannelBufferSize),
	}
}

// Acks returns the channel of translated receipt events.
func (b *EventBridge) Acks() <-chan AckSignal {
	return b.acks
}

// Inbound returns the channel of translated inbound messages.
func (b *EventBridge) Inbound() <-chan Inbound {
	return b.inbound
}

// Start registers the event handler and blocks until the context is cancelled.
func (b *EventBridge) Start(ctx context.Context) {
	if b.client == nil || b.client.GetClient() == nil {
		slog.Error("EventBridge.Start: no client available")
		return
	}

	b.client.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Receipt:
			b.handleReceipt(v)
		case *events.Message:
			b.handleMessage(v)
		default:
			// Ignore other event types
		}
	})

	slog.Debug("EventBridge.Start: event handler registered")
	<-ctx.Done()
	slog.Debug("EventBridge.Start: stopping due to context cancellation")
}

// handleReceipt translates delivery and read receipts. One receipt may
// acknowledge several provider message ids at once.
func (b *EventBridge) handleReceipt(evt *events.Receipt) {
	var code models.AckCode
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		code = models.AckCodeDeliveryAck
	case events.ReceiptTypeRead:
		code = models.AckCodeReadAck
	case events.ReceiptTypeReadSelf:
		return
	default:
		slog.Debug("EventBridge.handleReceipt: ignoring receipt type", "type", evt.Type)
		return
	}

	sender := evt.MessageSource.Sender.User
	for _, id := range evt.MessageIDs {
		signal := AckSignal{
			ProviderMessageID: string(id),
			Code:              code,
			PhoneNumber:       sender,
			Timestamp:         evt.Timestamp.Unix(),
		}
		select {
		case b.acks <- signal:
			slog.Debug("EventBridge.handleReceipt: ack forwarded", "providerMessageID", signal.ProviderMessageID, "code", code.String())
		case <-time.After(DefaultChannelTimeout):
			slog.Warn("EventBridge.handleReceipt: ack channel blocked, dropping receipt", "providerMessageID", signal.ProviderMessageID)
		}
	}
}

// handleMessage translates inbound text messages. Non-text content is skipped.
func (b *EventBridge) handleMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	var body string
	if evt.Message.Conversation != nil {
		body = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		body = *evt.Message.ExtendedTextMessage.Text
	} else {
		slog.Debug("EventBridge.handleMessage: ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	msg := Inbound{
		ProviderMessageID: string(evt.Info.ID),
		ConversationID:    evt.Info.Chat.User,
		PhoneNumber:       evt.Info.Sender.User,
		Body:              body,
		Timestamp:         evt.Info.Timestamp.Unix(),
	}
	select {
	case b.inbound <- msg:
		slog.Debug("EventBridge.handleMessage: inbound forwarded", "from", msg.PhoneNumber)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("EventBridge.handleMessage: inbound channel blocked, dropping message", "from", msg.PhoneNumber)
	}
}
