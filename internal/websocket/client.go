package websocket

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay-backend/internal/models"
)

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes from broadcasts and direct sends
	room string     // guarded by the hub mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) send(eventType string, payload interface{}) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		log.Printf("gateway: failed to marshal %s event: %v", eventType, err)
		return
	}
	if err := c.write(data); err != nil {
		log.Printf("gateway: write failed: %v", err)
	}
}

func (c *client) sendError(message string) {
	c.send("error", models.ErrorEvent{Message: message})
}

// readLoop dispatches inbound client events until the connection drops.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg models.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("Invalid message format")
			continue
		}

		switch msg.Type {
		case "create_conversation":
			h.handleCreateConversation(c, msg.Payload)
		case "join_conversation":
			h.handleJoinConversation(c, msg.Payload)
		case "new_message":
			h.handleNewMessage(c, msg.Payload)
		default:
			c.sendError("Unknown event type: " + msg.Type)
		}
	}
}

func (h *Hub) handleCreateConversation(c *client, payload json.RawMessage) {
	var req models.CreateConversationPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError("Invalid create_conversation payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conversation, err := h.chat.CreateConversation(ctx, req.Participants, req.Title)
	if err != nil {
		log.Printf("gateway: failed to create conversation: %v", err)
		c.sendError("Failed to create conversation")
		return
	}

	c.send("conversation_created", models.ConversationCreatedEvent{ConversationID: conversation.ID})
}

func (h *Hub) handleJoinConversation(c *client, payload json.RawMessage) {
	var req models.JoinConversationPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" {
		c.sendError("Invalid join_conversation payload")
		return
	}
	h.joinRoom(c, req.ConversationID)
}

// handleNewMessage is the ingress of the AI pipeline: validate, echo the
// user message to the room without waiting for the AI, persist it, enqueue
// the compute job, then announce processing.
func (h *Hub) handleNewMessage(c *client, payload json.RawMessage) {
	var req models.NewMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError("Invalid new_message payload")
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" || strings.TrimSpace(req.Sender) == "" || strings.TrimSpace(req.Content) == "" {
		c.sendError("conversation_id, sender and content are required")
		return
	}

	// Optimistic echo: the user message reaches the room before any AI
	// reply for it can exist.
	h.Broadcast(req.ConversationID, "message_received", models.MessageReceivedEvent{
		ConversationID: req.ConversationID,
		Sender:         req.Sender,
		Content:        req.Content,
		MessageType:    "user",
		Timestamp:      time.Now().UTC(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := h.chat.AddMessage(ctx, req.ConversationID, req.Sender, req.Content, "user"); err != nil {
		log.Printf("gateway: failed to persist user message: %v", err)
		c.sendError("Failed to process message")
		return
	}

	jobID, err := h.jobs.EnqueueAIJob(ctx, req.ConversationID, req.Content, req.Sender)
	if err != nil {
		log.Printf("gateway: failed to enqueue AI job: %v", err)
		c.sendError("Failed to process message")
		return
	}

	h.Broadcast(req.ConversationID, "processing_status", models.ProcessingStatusEvent{
		JobID:  jobID,
		Status: "processing",
	})
}
