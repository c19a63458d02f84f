// Package store persists conversations and their messages.
//
// Implementations must guarantee at most one active conversation per phone
// and strictly increasing message timestamps within a conversation. Writes
// to a single conversation are atomic; there is no cross-row transaction.
package store

import (
	"context"

	"github.com/autoshine/detailing-desk/internal/model"
)

// Store is the conversation persistence contract.
type Store interface {
	// FindActiveByPhone returns model.ErrNotFound when the phone has no
	// active conversation.
	FindActiveByPhone(ctx context.Context, phone string) (*model.Conversation, error)

	// CreateConversation returns model.ErrActiveConversationExists when an
	// active conversation for phone already exists.
	CreateConversation(ctx context.Context, phone, name string, platform model.Platform) (*model.Conversation, error)

	// AppendMessage stores a message and advances the conversation's
	// last message time.
	AppendMessage(ctx context.Context, conversationID, content string, sender model.Sender, channel model.Platform) (*model.Message, error)

	UpdateControlMode(ctx context.Context, id string, mode model.ControlMode, agent *string) (*model.Conversation, error)
	UpdateBehaviorSettings(ctx context.Context, id string, settings *model.BehaviorSettings) (*model.Conversation, error)
	SetNeedsAttention(ctx context.Context, id string, needs bool) (*model.Conversation, error)
	CloseConversation(ctx context.Context, id string) (*model.Conversation, error)

	// Find returns the conversation without its messages.
	Find(ctx context.Context, id string) (*model.Conversation, error)

	// Get returns the conversation with its messages in timestamp order.
	Get(ctx context.Context, id string) (*model.Conversation, error)

	// List returns conversations matching filter, most recent activity first.
	List(ctx context.Context, filter model.Filter) ([]model.Conversation, error)

	Ping(ctx context.Context) error
	Close() error
}
