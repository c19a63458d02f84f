package model

import (
	"time"
)

// EventType names a live broadcast event.
type EventType string

const (
	EventNewConversation     EventType = "new_conversation"
	EventNewMessage          EventType = "new_message"
	EventConversationMessage EventType = "conversation_message"
	EventConversationUpdated EventType = "conversation_updated"
	EventControlModeChanged  EventType = "control_mode_changed"
	EventBehaviorUpdated     EventType = "behavior_updated"
)

// NewMessageEvent is the monitoring payload for an appended message.
type NewMessageEvent struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
}

// ControlModeEvent carries the full resulting control state.
type ControlModeEvent struct {
	ConversationID string      `json:"conversation_id"`
	ControlMode    ControlMode `json:"control_mode"`
	AssignedAgent  *string     `json:"assigned_agent"`
}

// BehaviorEvent carries the conversation's current behavior settings.
type BehaviorEvent struct {
	ConversationID   string            `json:"conversation_id"`
	BehaviorSettings *BehaviorSettings `json:"behavior_settings"`
}

// Transition names a control-mode operation.
type Transition string

const (
	TransitionTakeover Transition = "takeover"
	TransitionHandoff  Transition = "handoff"
	TransitionPause    Transition = "pause"
	TransitionResume   Transition = "resume"
	TransitionClose    Transition = "close"
	TransitionEscalate Transition = "escalate"
	TransitionWebReset Transition = "web_reset"
)

// ControlEvent is one audited control-mode transition.
type ControlEvent struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Transition     Transition  `json:"transition"`
	From           ControlMode `json:"from"`
	To             ControlMode `json:"to"`
	Agent          string      `json:"agent,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	Sequence       uint64      `json:"sequence,omitempty"`
}
