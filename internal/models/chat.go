package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a chat thread between participants and the assistant.
type Conversation struct {
	ID           string    `json:"conversation_id"`
	Title        string    `json:"title"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a persisted chat message. Sender is normalized to lowercase.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"` // "user" | "ai"
	Timestamp      time.Time `json:"timestamp"`
}

// ChatTurn is a single role/content pair in a prompt history.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ConversationContext is the derived per-conversation state kept in cache.
type ConversationContext struct {
	SystemPrompt string    `json:"system_prompt"`
	LastTopic    string    `json:"last_topic,omitempty"`
	LastUpdated  time.Time `json:"last_updated,omitempty"`
}

// DefaultSystemPrompt is used when a conversation has no cached context.
const DefaultSystemPrompt = "You are a helpful AI assistant. Be friendly, professional, and concise."
