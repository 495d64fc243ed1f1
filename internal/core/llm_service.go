package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"tradeacademy.io/support-desk/internal/logger"
)

const (
	defaultChatModelName = "gemini-1.5-flash-latest"

	supportSystemInstruction = "You are the support assistant of a trading academy. Answer the customer's question using the " +
		"knowledge-base excerpts provided with it. If the excerpts do not cover the question, say that a human agent " +
		"will follow up. Keep answers short and never give personalised financial advice."
)

// Turn is one prior exchange handed to a Completer as chat history.
type Turn struct {
	Role string // "user" or "model"
	Text string
}

// Completer produces a reply for prompt given the conversation so far.
type Completer interface {
	Complete(ctx context.Context, history []Turn, prompt string) (string, error)
}

// LLMService is a Completer backed by Gemini.
type LLMService struct {
	client *genai.Client
	model  string
}

var _ Completer = (*LLMService)(nil)

func NewLLMService(ctx context.Context, apiKey string) (*LLMService, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, model: defaultChatModelName}, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		logger.Warn("Error closing GenAI client", "error", err)
	}
}

func (s *LLMService) Complete(ctx context.Context, history []Turn, prompt string) (string, error) {
	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(supportSystemInstruction)},
	}
	temp := float32(0.2)
	model.Temperature = &temp

	session := model.StartChat()
	session.History = toContents(history)

	resp, err := session.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

// toContents converts history to Gemini contents, merging consecutive
// turns from the same role. Gemini requires the first turn to be the
// user's, so leading model turns are dropped.
func toContents(history []Turn) []*genai.Content {
	var contents []*genai.Content
	for _, t := range history {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if len(contents) == 0 && t.Role != "user" {
			continue
		}
		if n := len(contents); n > 0 && contents[n-1].Role == t.Role {
			contents[n-1].Parts = append(contents[n-1].Parts, genai.Text(t.Text))
			continue
		}
		contents = append(contents, &genai.Content{Role: t.Role, Parts: []genai.Part{genai.Text(t.Text)}})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
