package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chatrelay-backend/internal/models"
)

// JobEnqueuer submits compute jobs, implemented by *queue.JobQueue.
type JobEnqueuer interface {
	EnqueueAIJob(ctx context.Context, conversationID, message, userID string) (string, error)
}

// ConversationService is the persistence surface the REST handlers need,
// implemented by *services.ChatService.
type ConversationService interface {
	CreateConversation(ctx context.Context, participants []string, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	UserConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	MessagesByConversation(ctx context.Context, conversationID string) ([]*models.Message, error)
	AddMessage(ctx context.Context, conversationID, sender, content, messageType string) (*models.Message, error)
}

type ChatHandler struct {
	chat ConversationService
	jobs JobEnqueuer
}

func NewChatHandler(chat ConversationService, jobs JobEnqueuer) *ChatHandler {
	return &ChatHandler{chat: chat, jobs: jobs}
}

type createConversationRequest struct {
	Participants []string `json:"participants"`
	Title        string   `json:"title"`
}

func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if len(req.Participants) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "At least one participant is required", r))
		return
	}

	conversation, err := h.chat.CreateConversation(r.Context(), req.Participants, req.Title)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create conversation", r))
		return
	}

	writeJSON(w, http.StatusCreated, conversation)
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "user_id query parameter is required", r))
		return
	}

	conversations, err := h.chat.UserConversations(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch conversations", r))
		return
	}
	if conversations == nil {
		conversations = []*models.Conversation{}
	}

	writeJSON(w, http.StatusOK, conversations)
}

func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conversation, err := h.chat.GetConversation(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Conversation not found", r))
		return
	}

	writeJSON(w, http.StatusOK, conversation)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	messages, err := h.chat.MessagesByConversation(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch messages", r))
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type sendMessageResponse struct {
	Message *models.Message `json:"message"`
	JobID   string          `json:"job_id"`
}

// SendMessage is the HTTP ingress of the AI pipeline, the REST equivalent
// of the WebSocket new_message event: persist the user message, enqueue
// the compute job, return immediately. The AI reply arrives over the
// room's WebSocket connections.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if strings.TrimSpace(req.Sender) == "" || strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "sender and content are required", r))
		return
	}

	message, err := h.chat.AddMessage(r.Context(), conversationID, req.Sender, req.Content, "user")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to persist message", r))
		return
	}

	jobID, err := h.jobs.EnqueueAIJob(r.Context(), conversationID, req.Content, req.Sender)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue AI processing", r))
		return
	}

	writeJSON(w, http.StatusAccepted, sendMessageResponse{Message: message, JobID: jobID})
}
