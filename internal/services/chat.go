package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatrelay-backend/internal/models"
	"chatrelay-backend/internal/repository"
)

// ChatService owns conversation and message persistence: the system of
// record the cache layer falls back to.
type ChatService struct {
	conversations *repository.ConversationRepo
	messages      *repository.MessageRepo
}

func NewChatService(conversations *repository.ConversationRepo, messages *repository.MessageRepo) *ChatService {
	return &ChatService{conversations: conversations, messages: messages}
}

func (s *ChatService) CreateConversation(ctx context.Context, participants []string, title string) (*models.Conversation, error) {
	if title == "" {
		title = "New Chat"
	}

	conversation := &models.Conversation{
		ID:           fmt.Sprintf("conv-%d", time.Now().UnixMilli()),
		Title:        title,
		Participants: participants,
	}

	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

func (s *ChatService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	return conversation, nil
}

func (s *ChatService) UserConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	conversations, err := s.conversations.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user conversations: %w", err)
	}
	return conversations, nil
}

func (s *ChatService) MessagesByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

// AddMessage persists a message and bumps the conversation's activity
// timestamp. Sender is normalized to lowercase.
func (s *ChatService) AddMessage(ctx context.Context, conversationID, sender, content, messageType string) (*models.Message, error) {
	message := &models.Message{
		ConversationID: conversationID,
		Sender:         strings.ToLower(sender),
		Content:        content,
		MessageType:    messageType,
	}

	if err := s.messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	if err := s.conversations.Touch(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}
	return message, nil
}
