// Package model defines data structures for the detailing desk.
package model

import (
	"time"
)

// Platform is the channel a conversation runs on. It is fixed at creation.
type Platform string

const (
	PlatformWeb Platform = "web"
	PlatformSMS Platform = "sms"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return p == PlatformWeb || p == PlatformSMS
}

// ControlMode says who is authoritative for replies in a conversation.
type ControlMode string

const (
	ControlAuto   ControlMode = "auto"
	ControlManual ControlMode = "manual"
	ControlPaused ControlMode = "paused"
)

// Status is the lifecycle status of a conversation. Closed is terminal.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// PendingAgent holds the assigned agent slot when the handoff detector
// escalates a conversation before any human has claimed it.
const PendingAgent = "pending"

// Conversation is a customer thread on a single channel.
type Conversation struct {
	ID                  string            `json:"id"`
	CustomerPhone       string            `json:"customer_phone"`
	CustomerName        string            `json:"customer_name,omitempty"`
	CustomerID          *string           `json:"customer_id,omitempty"`
	Platform            Platform          `json:"platform"`
	ControlMode         ControlMode       `json:"control_mode"`
	AssignedAgent       *string           `json:"assigned_agent"`
	BehaviorSettings    *BehaviorSettings `json:"behavior_settings,omitempty"`
	Status              Status            `json:"status"`
	NeedsHumanAttention bool              `json:"needs_human_attention"`
	LastMessageTime     time.Time         `json:"last_message_time"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`

	// Populated only by single-conversation reads.
	Messages []Message `json:"messages,omitempty"`
}

// Closed reports whether the conversation has been closed.
func (c *Conversation) Closed() bool {
	return c.Status == StatusClosed
}

// Agent returns the assigned agent or "" when none is set.
func (c *Conversation) Agent() string {
	if c.AssignedAgent == nil {
		return ""
	}
	return *c.AssignedAgent
}

// Filter selects a subset of conversations for listing.
type Filter string

const (
	FilterActive Filter = "active"
	FilterManual Filter = "manual"
	FilterClosed Filter = "closed"
)

// ParseFilter maps a query value to a Filter. Empty and "all" mean active.
func ParseFilter(s string) (Filter, bool) {
	switch s {
	case "", "all", string(FilterActive):
		return FilterActive, true
	case string(FilterManual):
		return FilterManual, true
	case string(FilterClosed):
		return FilterClosed, true
	}
	return "", false
}

// Matches reports whether c belongs in the filtered listing.
func (f Filter) Matches(c *Conversation) bool {
	switch f {
	case FilterManual:
		return c.Status == StatusActive && c.ControlMode == ControlManual
	case FilterClosed:
		return c.Status == StatusClosed
	default:
		return c.Status == StatusActive
	}
}

// TakeoverRequest is the body of a takeover call.
type TakeoverRequest struct {
	Agent string `json:"agent"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
