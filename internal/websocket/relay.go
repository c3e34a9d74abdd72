package websocket

import (
	"context"
	"log"

	"chatrelay-backend/internal/models"
)

// Broadcaster is the capability to push an event to a conversation room.
// The relay receives it as an explicit dependency rather than reaching for
// a shared socket-server reference.
type Broadcaster interface {
	Broadcast(conversationID, eventType string, payload interface{})
}

// EventSource yields delivery events, implemented by *queue.EventQueue.
type EventSource interface {
	Drain(ctx context.Context, handler func(context.Context, *models.DeliveryEvent))
}

// Relay drains the delivery queue and pushes each event to the room it
// names. It runs in the gateway process, independent of any client
// connection.
type Relay struct {
	events      EventSource
	broadcaster Broadcaster
}

func NewRelay(events EventSource, broadcaster Broadcaster) *Relay {
	return &Relay{events: events, broadcaster: broadcaster}
}

// Run blocks draining delivery events until ctx is canceled.
func (r *Relay) Run(ctx context.Context) {
	log.Println("gateway: delivery relay started")
	r.events.Drain(ctx, r.handle)
}

func (r *Relay) handle(ctx context.Context, event *models.DeliveryEvent) {
	if event.MessageType == "error" {
		r.broadcaster.Broadcast(event.ConversationID, "error", models.ErrorEvent{Message: event.Content})
		return
	}

	r.broadcaster.Broadcast(event.ConversationID, "message_received", models.MessageReceivedEvent{
		ConversationID: event.ConversationID,
		Sender:         event.Sender,
		Content:        event.Content,
		MessageType:    event.MessageType,
		Timestamp:      event.Timestamp,
	})
	r.broadcaster.Broadcast(event.ConversationID, "processing_status", models.ProcessingStatusEvent{
		JobID:  event.JobID,
		Status: "completed",
	})
}
