package model

import (
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAI       Sender = "ai"
	SenderAgent    Sender = "agent"
)

// Message is an immutable conversation turn.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	FromCustomer   bool      `json:"from_customer"`
	Channel        Platform  `json:"channel"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewMessage fills the derived fields of a message.
func NewMessage(id, conversationID, content string, sender Sender, channel Platform, ts time.Time) Message {
	return Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		FromCustomer:   sender == SenderCustomer,
		Channel:        channel,
		Content:        content,
		Timestamp:      ts,
	}
}

// InboundMessage is a customer message arriving from a webhook or web chat.
type InboundMessage struct {
	Text         string
	Phone        string
	Platform     Platform
	CustomerName string
}

// ReplyKind describes how the synchronous reply was produced.
type ReplyKind string

const (
	ReplyAI      ReplyKind = "ai"
	ReplyHolding ReplyKind = "holding"
	ReplyNone    ReplyKind = "none"
)

// InboundReply is the synchronous answer to an inbound message.
type InboundReply struct {
	ConversationID string      `json:"conversation_id"`
	Reply          string      `json:"reply"`
	Kind           ReplyKind   `json:"kind"`
	ControlMode    ControlMode `json:"control_mode"`
	Message        *Message    `json:"message,omitempty"`
}

// SendMessageRequest is an agent-authored message from the dashboard.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ChatRequest is the web chat request body.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Name      string `json:"name,omitempty"`
}

// ChatResponse is the web chat reply body.
type ChatResponse struct {
	ConversationID string      `json:"conversationId,omitempty"`
	Reply          string      `json:"reply"`
	ControlMode    ControlMode `json:"controlMode,omitempty"`
}

// LiveMessage is the minimal message shape sent to conversation participants.
type LiveMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Live reshapes m for the per-conversation channel.
func (m *Message) Live() LiveMessage {
	return LiveMessage{
		ID:        m.ID,
		Content:   m.Content,
		Sender:    m.Sender,
		Timestamp: m.Timestamp,
	}
}
