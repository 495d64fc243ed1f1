package core

import (
	"context"
	"fmt"
	"strings"

	"tradeacademy.io/support-desk/internal/logger"
	"tradeacademy.io/support-desk/internal/relay"
	"tradeacademy.io/support-desk/internal/store"
)

const (
	ChatbotSenderID = "chatbot"

	SourceLLM           = "llm"
	SourceKnowledgeBase = "knowledge_base"
	SourceFallback      = "fallback"

	fallbackReply   = "I don't have an answer for that yet. A support agent will follow up with you shortly."
	historyTurns    = 5
	contextArticles = 3
)

type ChatbotReply struct {
	Reply   string         `json:"reply"`
	Source  string         `json:"source"`
	Message *store.Message `json:"message,omitempty"`
}

// Chatbot answers customer questions from the knowledge base, optionally
// phrasing the answer with an LLM.
type Chatbot struct {
	knowledge *KnowledgeService
	store     store.Store
	relay     relay.Registry
	llm       Completer // nil disables the LLM path
}

func NewChatbot(k *KnowledgeService, st store.Store, registry relay.Registry, llm Completer) *Chatbot {
	return &Chatbot{knowledge: k, store: st, relay: registry, llm: llm}
}

// Reply answers message. When conversationID names an Active conversation
// the reply is stored as a system message and pushed to its room; any other
// id is ignored and nothing is written.
func (b *Chatbot) Reply(ctx context.Context, message, conversationID string) (*ChatbotReply, error) {
	if conversationID != "" {
		conv, err := b.store.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("conversation lookup failed: %w", err)
		}
		if conv == nil || conv.Status != store.StatusActive {
			logger.FromContext(ctx).Debug("Chatbot reply not attached to conversation", "conversation_id", conversationID)
			conversationID = ""
		}
	}

	results, err := b.knowledge.Search(ctx, message, contextArticles)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	reply := &ChatbotReply{Reply: fallbackReply, Source: SourceFallback}
	if len(results) > 0 {
		reply.Reply, reply.Source = results[0].Answer, SourceKnowledgeBase
	}
	if b.llm != nil {
		if text, err := b.complete(ctx, message, conversationID, results); err != nil {
			logger.FromContext(ctx).Warn("LLM completion failed, using knowledge base answer", "error", err)
		} else {
			reply.Reply, reply.Source = text, SourceLLM
		}
	}

	if conversationID == "" {
		return reply, nil
	}
	msg := &store.Message{
		ConversationID: conversationID,
		SenderType:     store.SenderSystem,
		SenderID:       ChatbotSenderID,
		Message:        reply.Reply,
	}
	if err := b.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	reply.Message = msg
	if err := b.relay.Broadcast(conversationID, relay.EventReceiveMessage, msg, ""); err != nil {
		logger.FromContext(ctx).Warn("Failed to relay chatbot reply", "conversation_id", conversationID, "error", err)
	}
	return reply, nil
}

func (b *Chatbot) complete(ctx context.Context, message, conversationID string, results []SearchResult) (string, error) {
	var history []Turn
	if conversationID != "" {
		msgs, err := b.store.ListMessages(ctx, conversationID)
		if err != nil {
			logger.FromContext(ctx).Warn("Proceeding without chat history", "conversation_id", conversationID, "error", err)
		}
		if len(msgs) > historyTurns {
			msgs = msgs[len(msgs)-historyTurns:]
		}
		for _, m := range msgs {
			role := "model"
			if m.SenderType == store.SenderCustomer {
				role = "user"
			}
			history = append(history, Turn{Role: role, Text: m.Message})
		}
	}
	return b.llm.Complete(ctx, history, buildPrompt(message, results))
}

func buildPrompt(message string, results []SearchResult) string {
	if len(results) == 0 {
		return "No knowledge-base article matched this question. Question: " + message
	}
	var sb strings.Builder
	sb.WriteString("Knowledge-base excerpts:\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s: %s\n", r.Title, r.Answer)
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(message)
	return sb.String()
}
