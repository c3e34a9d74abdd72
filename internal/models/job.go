package models

import (
	"encoding/json"
	"time"
)

// AIJob is a compute-queue entry: "produce an AI reply for this message".
type AIJob struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Message        string    `json:"message"`
	UserID         string    `json:"user_id"`
	Attempt        int       `json:"attempt"`
	EnqueuedAt     time.Time `json:"enqueued_at"`

	// Receipt is the raw queue payload this job was dequeued as. The queue
	// uses it to settle the in-flight entry; it never travels over the wire.
	Receipt string `json:"-"`
}

// DeliveryEvent carries an already-computed reply from whichever process
// computed it to whichever process owns the live connections. Never mutated
// after creation.
type DeliveryEvent struct {
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"` // "ai" | "error"
	Timestamp      time.Time `json:"timestamp"`
	JobID          string    `json:"job_id"`
}

// WebSocket event envelope, both directions.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound payloads.
type CreateConversationPayload struct {
	Participants []string `json:"participants"`
	Title        string   `json:"title"`
}

type JoinConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

type NewMessagePayload struct {
	ConversationID string `json:"conversation_id"`
	Sender         string `json:"sender"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
}

// Outbound payloads.
type ConversationCreatedEvent struct {
	ConversationID string `json:"conversation_id"`
}

type MessageReceivedEvent struct {
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	Timestamp      time.Time `json:"timestamp"`
}

type ProcessingStatusEvent struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"` // "processing" | "completed"
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// API error response shape shared by REST handlers and middleware.
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
