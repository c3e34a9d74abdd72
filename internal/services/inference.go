package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"chatrelay-backend/internal/models"
)

// ModelConfig is the fixed sampling configuration applied to every call.
type ModelConfig struct {
	Temperature     float32
	TopP            float32
	MaxOutputTokens int32
}

// DefaultModelConfig matches the sampling the pipeline was tuned with.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{Temperature: 0.7, TopP: 1.0, MaxOutputTokens: 1024}
}

// InferenceClient is a stateless adapter around the external LLM API: one
// call per Complete invocation, no internal retries. Failures surface to
// the caller so the job queue's retry policy applies.
type InferenceClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewInferenceClient(ctx context.Context, apiKey, modelName string, cfg ModelConfig) (*InferenceClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(cfg.Temperature)
	model.SetTopP(cfg.TopP)
	model.SetMaxOutputTokens(cfg.MaxOutputTokens)

	return &InferenceClient{client: client, model: model}, nil
}

func (c *InferenceClient) Close() {
	c.client.Close()
}

// Complete sends the system prompt, prior turns, and the new user message
// as a single chat completion and returns the reply text.
func (c *InferenceClient) Complete(ctx context.Context, systemPrompt string, history []models.ChatTurn, message string) (string, error) {
	model := c.model
	if systemPrompt != "" {
		// SystemInstruction is per-request state, so work on a copy.
		m := *c.model
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
		model = &m
	}

	session := model.StartChat()
	session.History = make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("failed to generate AI response: %w", err)
	}

	reply := strings.TrimSpace(extractText(resp))
	if reply == "" {
		return "", fmt.Errorf("failed to generate AI response: empty completion")
	}
	return reply, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
