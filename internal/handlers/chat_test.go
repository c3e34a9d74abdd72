package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"chatrelay-backend/internal/models"
)

// ─── Fakes ───

type fakeChatService struct {
	added  []*models.Message
	addErr error
}

func (f *fakeChatService) CreateConversation(ctx context.Context, participants []string, title string) (*models.Conversation, error) {
	return &models.Conversation{ID: "conv-1", Title: title, Participants: participants}, nil
}
func (f *fakeChatService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return &models.Conversation{ID: id}, nil
}
func (f *fakeChatService) UserConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return nil, nil
}
func (f *fakeChatService) MessagesByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	return nil, nil
}
func (f *fakeChatService) AddMessage(ctx context.Context, conversationID, sender, content, messageType string) (*models.Message, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	m := &models.Message{ConversationID: conversationID, Sender: sender, Content: content, MessageType: messageType, Timestamp: time.Now()}
	f.added = append(f.added, m)
	return m, nil
}

type fakeEnqueuer struct {
	jobs []models.AIJob
	err  error
}

func (f *fakeEnqueuer) EnqueueAIJob(ctx context.Context, conversationID, message, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, models.AIJob{ConversationID: conversationID, Message: message, UserID: userID})
	return "job-123", nil
}

func newTestRouter(chat *fakeChatService, jobs *fakeEnqueuer) http.Handler {
	h := NewChatHandler(chat, jobs)
	r := chi.NewRouter()
	r.Post("/api/v1/conversations/{id}/messages", h.SendMessage)
	r.Post("/api/v1/conversations", h.CreateConversation)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// ─── SendMessage round trips ───

func TestSendMessage_AcceptedWithJobID(t *testing.T) {
	chat, jobs := &fakeChatService{}, &fakeEnqueuer{}
	router := newTestRouter(chat, jobs)

	rr := postJSON(t, router, "/api/v1/conversations/c1/messages", map[string]string{
		"sender":  "u1",
		"content": "Hello",
	})

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp sendMessageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.JobID != "job-123" {
		t.Errorf("expected job id 'job-123', got %q", resp.JobID)
	}
	if resp.Message == nil || resp.Message.Content != "Hello" {
		t.Errorf("expected the persisted message back, got %+v", resp.Message)
	}

	if len(chat.added) != 1 || chat.added[0].MessageType != "user" {
		t.Errorf("expected one persisted user message, got %+v", chat.added)
	}
	if len(jobs.jobs) != 1 || jobs.jobs[0].ConversationID != "c1" || jobs.jobs[0].Message != "Hello" || jobs.jobs[0].UserID != "u1" {
		t.Errorf("unexpected enqueued job: %+v", jobs.jobs)
	}
}

func TestSendMessage_ValidationRejectedBeforePersistence(t *testing.T) {
	chat, jobs := &fakeChatService{}, &fakeEnqueuer{}
	router := newTestRouter(chat, jobs)

	rr := postJSON(t, router, "/api/v1/conversations/c1/messages", map[string]string{
		"sender":  "u1",
		"content": "   ",
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("expected code VALIDATION_ERROR, got %q", resp.Error.Code)
	}

	if len(chat.added) != 0 {
		t.Errorf("expected nothing persisted, got %+v", chat.added)
	}
	if len(jobs.jobs) != 0 {
		t.Errorf("expected nothing enqueued, got %+v", jobs.jobs)
	}
}

func TestSendMessage_EnqueueFailureIsInternalError(t *testing.T) {
	chat := &fakeChatService{}
	jobs := &fakeEnqueuer{err: errors.New("broker down")}
	router := newTestRouter(chat, jobs)

	rr := postJSON(t, router, "/api/v1/conversations/c1/messages", map[string]string{
		"sender":  "u1",
		"content": "Hello",
	})

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestCreateConversation_RequiresParticipants(t *testing.T) {
	router := newTestRouter(&fakeChatService{}, &fakeEnqueuer{})

	rr := postJSON(t, router, "/api/v1/conversations", map[string]interface{}{
		"participants": []string{},
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSendMessageRequest_Parsing(t *testing.T) {
	body := map[string]string{
		"sender":  "u1",
		"content": "Hello",
	}
	jsonBody, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/c1/messages", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")

	var parsed sendMessageRequest
	if err := json.NewDecoder(req.Body).Decode(&parsed); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}

	if parsed.Sender != "u1" {
		t.Errorf("Expected sender 'u1', got %q", parsed.Sender)
	}
	if parsed.Content != "Hello" {
		t.Errorf("Expected content 'Hello', got %q", parsed.Content)
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusCreated, map[string]string{"conversation_id": "conv-1"})

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got %q", rr.Header().Get("Content-Type"))
	}

	var result map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["conversation_id"] != "conv-1" {
		t.Errorf("Expected conversation_id 'conv-1', got %q", result["conversation_id"])
	}
}

func TestErrorResp_IncludesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("X-Request-ID", "req-123")

	resp := errorResp("VALIDATION_ERROR", "user_id query parameter is required", req)

	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected code VALIDATION_ERROR, got %q", resp.Error.Code)
	}
	if resp.Error.RequestID != "req-123" {
		t.Errorf("Expected request id 'req-123', got %q", resp.Error.RequestID)
	}
}
