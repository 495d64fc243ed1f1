package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Inbound events.
const (
	EventAgentStatus      = "agentStatus"
	EventNewChat          = "newChat"
	EventSendMessage      = "sendMessage"
	EventTyping           = "typing"
	EventJoinConversation = "joinConversation"
)

// Outbound events.
const (
	EventAgentStatusUpdate   = "agentStatusUpdate"
	EventNewChatNotification = "newChatNotification"
	EventReceiveMessage      = "receiveMessage"
	EventUserTyping          = "userTyping"
	EventNewSignal           = "newSignal"
	EventError               = "error"
)

type AgentStatusPayload struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
	Name    string `json:"name,omitempty"`
}

func (p AgentStatusPayload) Validate() error {
	if p.AgentID == "" || p.Status == "" {
		return errors.New("agent_id and status are required")
	}
	return nil
}

type NewChatPayload struct {
	ConversationID string `json:"conversation_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	CustomerName   string `json:"customer_name,omitempty"`
	Message        string `json:"message,omitempty"`
}

func (p NewChatPayload) Validate() error {
	if p.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	return nil
}

type ChatMessagePayload struct {
	ID             string          `json:"id,omitempty"`
	ConversationID string          `json:"conversation_id"`
	SenderType     string          `json:"sender_type,omitempty"`
	SenderID       string          `json:"sender_id,omitempty"`
	Message        string          `json:"message"`
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
}

func (p ChatMessagePayload) Validate() error {
	if p.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	if p.Message == "" {
		return errors.New("message is required")
	}
	return nil
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
	UserName       string `json:"user_name,omitempty"`
	IsTyping       bool   `json:"is_typing"`
}

func (p TypingPayload) Validate() error {
	if p.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	return nil
}

type JoinConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

func (p JoinConversationPayload) Validate() error {
	if p.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	return nil
}

// ErrorPayload is sent back to a client whose frame was rejected.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type validator interface {
	Validate() error
}

func decodeStrict(data json.RawMessage, v validator) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("data is required")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	return v.Validate()
}

// conversationIDFrom accepts either a bare JSON string or
// {"conversation_id": "..."}.
func conversationIDFrom(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		if strings.TrimSpace(id) == "" {
			return "", errors.New("conversation id is required")
		}
		return id, nil
	}
	var p JoinConversationPayload
	if err := decodeStrict(data, &p); err != nil {
		return "", err
	}
	return p.ConversationID, nil
}

// dispatch routes one inbound frame from c.
func (h *Hub) dispatch(c *Client, raw []byte) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil || env.Event == "" {
		h.reject(c, "", "frame must be {\"event\": string, \"data\": any}")
		return
	}

	var err error
	switch env.Event {
	case EventAgentStatus:
		var p AgentStatusPayload
		if err = decodeStrict(env.Data, &p); err == nil {
			err = h.Broadcast(Everyone, EventAgentStatusUpdate, env.Data, c.ID)
		}
	case EventNewChat:
		var p NewChatPayload
		if err = decodeStrict(env.Data, &p); err == nil {
			err = h.Broadcast(Everyone, EventNewChatNotification, env.Data, "")
		}
	case EventSendMessage:
		var p ChatMessagePayload
		if err = decodeStrict(env.Data, &p); err == nil {
			err = h.Broadcast(p.ConversationID, EventReceiveMessage, env.Data, "")
		}
	case EventTyping:
		var p TypingPayload
		if err = decodeStrict(env.Data, &p); err == nil {
			err = h.Broadcast(p.ConversationID, EventUserTyping, env.Data, c.ID)
		}
	case EventJoinConversation:
		var room string
		if room, err = conversationIDFrom(env.Data); err == nil {
			h.Join(room, c.ID)
			c.log.Debug("Joined conversation", slog.String("conversation_id", room))
		}
	default:
		err = fmt.Errorf("unknown event %q", env.Event)
	}

	if err != nil {
		h.reject(c, env.Event, err.Error())
	}
}

// reject sends an error event to c alone, if it is still connected.
func (h *Hub) reject(c *Client, event, message string) {
	frame, err := encodeFrame(EventError, ErrorPayload{Event: event, Message: message})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c.ID] == c {
		c.enqueue(frame)
	}
}
