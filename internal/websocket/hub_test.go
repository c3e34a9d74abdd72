package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay-backend/internal/models"
)

type fakeStore struct {
	conversationID string
	added          []models.NewMessagePayload
	addErr         error
}

func (f *fakeStore) CreateConversation(ctx context.Context, participants []string, title string) (*models.Conversation, error) {
	return &models.Conversation{ID: f.conversationID, Title: title, Participants: participants}, nil
}

func (f *fakeStore) AddMessage(ctx context.Context, conversationID, sender, content, messageType string) (*models.Message, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.added = append(f.added, models.NewMessagePayload{
		ConversationID: conversationID, Sender: sender, Content: content, MessageType: messageType,
	})
	return &models.Message{ConversationID: conversationID, Sender: sender, Content: content, MessageType: messageType}, nil
}

type fakeEnqueuer struct {
	jobID string
	jobs  []models.AIJob
}

func (f *fakeEnqueuer) EnqueueAIJob(ctx context.Context, conversationID, message, userID string) (string, error) {
	f.jobs = append(f.jobs, models.AIJob{ConversationID: conversationID, Message: message, UserID: userID})
	return f.jobID, nil
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	raw, _ := json.Marshal(payload)
	data, _ := json.Marshal(models.WSMessage{Type: eventType, Payload: raw})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) models.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg models.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return msg
}

func TestHub_SendMessage_OptimisticEchoPrecedesStatus(t *testing.T) {
	store := &fakeStore{}
	enqueuer := &fakeEnqueuer{jobID: "job-1"}
	hub := NewHub(store, enqueuer)

	conn := dialHub(t, hub)
	sendEvent(t, conn, "join_conversation", models.JoinConversationPayload{ConversationID: "c1"})
	sendEvent(t, conn, "new_message", models.NewMessagePayload{
		ConversationID: "c1", Sender: "u1", Content: "Hello", MessageType: "user",
	})

	// The raw user message reaches the room first.
	first := readEvent(t, conn)
	if first.Type != "message_received" {
		t.Fatalf("expected message_received first, got %s", first.Type)
	}
	var echo models.MessageReceivedEvent
	json.Unmarshal(first.Payload, &echo)
	if echo.MessageType != "user" || echo.Content != "Hello" || echo.Sender != "u1" {
		t.Errorf("unexpected echo: %+v", echo)
	}

	second := readEvent(t, conn)
	if second.Type != "processing_status" {
		t.Fatalf("expected processing_status second, got %s", second.Type)
	}
	var status models.ProcessingStatusEvent
	json.Unmarshal(second.Payload, &status)
	if status.JobID != "job-1" || status.Status != "processing" {
		t.Errorf("unexpected status: %+v", status)
	}

	if len(enqueuer.jobs) != 1 || enqueuer.jobs[0].Message != "Hello" {
		t.Errorf("expected one enqueued job for 'Hello', got %+v", enqueuer.jobs)
	}
	if len(store.added) != 1 || store.added[0].MessageType != "user" {
		t.Errorf("expected persisted user message, got %+v", store.added)
	}
}

func TestHub_SendMessage_ValidationRejectedBeforeEnqueue(t *testing.T) {
	store := &fakeStore{}
	enqueuer := &fakeEnqueuer{jobID: "job-1"}
	hub := NewHub(store, enqueuer)

	conn := dialHub(t, hub)
	sendEvent(t, conn, "join_conversation", models.JoinConversationPayload{ConversationID: "c1"})
	sendEvent(t, conn, "new_message", models.NewMessagePayload{
		ConversationID: "c1", Sender: "u1", Content: "   ",
	})

	msg := readEvent(t, conn)
	if msg.Type != "error" {
		t.Fatalf("expected error event, got %s", msg.Type)
	}
	if len(enqueuer.jobs) != 0 {
		t.Errorf("expected no enqueued jobs, got %d", len(enqueuer.jobs))
	}
	if len(store.added) != 0 {
		t.Errorf("expected nothing persisted, got %d", len(store.added))
	}
}

func TestHub_CreateConversation(t *testing.T) {
	store := &fakeStore{conversationID: "conv-42"}
	hub := NewHub(store, &fakeEnqueuer{})

	conn := dialHub(t, hub)
	sendEvent(t, conn, "create_conversation", models.CreateConversationPayload{
		Participants: []string{"u1"}, Title: "Test",
	})

	msg := readEvent(t, conn)
	if msg.Type != "conversation_created" {
		t.Fatalf("expected conversation_created, got %s", msg.Type)
	}
	var created models.ConversationCreatedEvent
	json.Unmarshal(msg.Payload, &created)
	if created.ConversationID != "conv-42" {
		t.Errorf("expected conversation id conv-42, got %q", created.ConversationID)
	}
}

func TestHub_RoomScopedBroadcast(t *testing.T) {
	hub := NewHub(&fakeStore{}, &fakeEnqueuer{jobID: "job-1"})

	inRoom := dialHub(t, hub)
	outOfRoom := dialHub(t, hub)
	sendEvent(t, inRoom, "join_conversation", models.JoinConversationPayload{ConversationID: "c1"})
	sendEvent(t, outOfRoom, "join_conversation", models.JoinConversationPayload{ConversationID: "c2"})

	// Joins are processed on each connection's read loop; give them a beat.
	time.Sleep(50 * time.Millisecond)
	hub.Broadcast("c1", "message_received", models.MessageReceivedEvent{ConversationID: "c1", Content: "hi"})

	msg := readEvent(t, inRoom)
	if msg.Type != "message_received" {
		t.Errorf("room member expected message_received, got %s", msg.Type)
	}

	outOfRoom.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := outOfRoom.ReadMessage(); err == nil {
		t.Error("client in another room unexpectedly received the broadcast")
	}
}

// ─── Relay ───

type fakeBroadcaster struct {
	calls []struct {
		conversationID string
		eventType      string
		payload        interface{}
	}
}

func (f *fakeBroadcaster) Broadcast(conversationID, eventType string, payload interface{}) {
	f.calls = append(f.calls, struct {
		conversationID string
		eventType      string
		payload        interface{}
	}{conversationID, eventType, payload})
}

func TestRelay_DeliversReplyAndCompletion(t *testing.T) {
	b := &fakeBroadcaster{}
	relay := NewRelay(nil, b)

	relay.handle(context.Background(), &models.DeliveryEvent{
		ConversationID: "c1",
		Sender:         "ai",
		Content:        "Hi there",
		MessageType:    "ai",
		Timestamp:      time.Now(),
		JobID:          "job-1",
	})

	if len(b.calls) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(b.calls))
	}
	if b.calls[0].eventType != "message_received" || b.calls[0].conversationID != "c1" {
		t.Errorf("unexpected first broadcast: %+v", b.calls[0])
	}
	reply, ok := b.calls[0].payload.(models.MessageReceivedEvent)
	if !ok || reply.Content != "Hi there" || reply.MessageType != "ai" {
		t.Errorf("unexpected reply payload: %+v", b.calls[0].payload)
	}
	status, ok := b.calls[1].payload.(models.ProcessingStatusEvent)
	if !ok || status.Status != "completed" || status.JobID != "job-1" {
		t.Errorf("unexpected status payload: %+v", b.calls[1].payload)
	}
}

func TestRelay_TerminalFailureBroadcastsError(t *testing.T) {
	b := &fakeBroadcaster{}
	relay := NewRelay(nil, b)

	relay.handle(context.Background(), &models.DeliveryEvent{
		ConversationID: "c1",
		MessageType:    "error",
		Content:        "The assistant could not generate a reply. Please try again.",
		JobID:          "job-1",
	})

	if len(b.calls) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(b.calls))
	}
	if b.calls[0].eventType != "error" {
		t.Errorf("expected error event, got %s", b.calls[0].eventType)
	}
}
