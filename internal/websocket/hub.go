package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"chatrelay-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// JobEnqueuer submits a compute job for a user message, implemented by
// *queue.JobQueue.
type JobEnqueuer interface {
	EnqueueAIJob(ctx context.Context, conversationID, message, userID string) (string, error)
}

// ConversationStore is the persistence surface the gateway needs,
// implemented by *services.ChatService.
type ConversationStore interface {
	CreateConversation(ctx context.Context, participants []string, title string) (*models.Conversation, error)
	AddMessage(ctx context.Context, conversationID, sender, content, messageType string) (*models.Message, error)
}

// Hub owns live client connections and maps each into zero-or-one
// conversation room. Room membership is ephemeral; a reconnecting client
// must re-join.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*client]bool
	clients map[*client]bool

	chat ConversationStore
	jobs JobEnqueuer
}

func NewHub(chat ConversationStore, jobs JobEnqueuer) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*client]bool),
		clients: make(map[*client]bool),
		chat:    chat,
		jobs:    jobs,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("gateway: WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn}
	h.register(c)
	go h.readLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	log.Printf("gateway: client connected (total: %d)", len(h.clients))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()
	delete(h.clients, c)
	if c.room != "" {
		if members, ok := h.rooms[c.room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, c.room)
			}
		}
	}
	log.Printf("gateway: client disconnected (total: %d)", len(h.clients))
}

// joinRoom moves the client into the conversation's room, leaving any
// previous room.
func (h *Hub) joinRoom(c *client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.room != "" {
		if members, ok := h.rooms[c.room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, c.room)
			}
		}
	}

	c.room = conversationID
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[*client]bool)
	}
	h.rooms[conversationID][c] = true
	log.Printf("gateway: client joined conversation %s", conversationID)
}

// Broadcast pushes an event to every connection in the conversation's
// room. Satisfies the Broadcaster capability the delivery relay depends on.
func (h *Hub) Broadcast(conversationID, eventType string, payload interface{}) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		log.Printf("gateway: failed to marshal %s event: %v", eventType, err)
		return
	}

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.write(data); err != nil {
			log.Printf("gateway: write to room %s member failed: %v", conversationID, err)
		}
	}
}

func marshalEvent(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.WSMessage{Type: eventType, Payload: raw})
}
