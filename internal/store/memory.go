package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoshine/detailing-desk/internal/model"
)

// MemoryStore keeps conversations in process memory. It is used when no
// database is configured and in tests.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	activeByPhone map[string]string
	now           func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		activeByPhone: make(map[string]string),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindActiveByPhone looks up the active conversation for phone.
func (s *MemoryStore) FindActiveByPhone(ctx context.Context, phone string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeByPhone[phone]
	if !ok {
		return nil, fmt.Errorf("active conversation for phone: %w", model.ErrNotFound)
	}
	return cloneConversation(s.conversations[id]), nil
}

// CreateConversation creates an active auto-mode conversation.
func (s *MemoryStore) CreateConversation(ctx context.Context, phone, name string, platform model.Platform) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.activeByPhone[phone]; ok {
		return nil, model.ErrActiveConversationExists
	}

	now := s.now()
	conv := &model.Conversation{
		ID:              uuid.Must(uuid.NewV7()).String(),
		CustomerPhone:   phone,
		CustomerName:    name,
		Platform:        platform,
		ControlMode:     model.ControlAuto,
		Status:          model.StatusActive,
		LastMessageTime: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.conversations[conv.ID] = conv
	s.activeByPhone[phone] = conv.ID

	return cloneConversation(conv), nil
}

// AppendMessage appends an immutable message to a conversation.
func (s *MemoryStore) AppendMessage(ctx context.Context, conversationID, content string, sender model.Sender, channel model.Platform) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}

	ts := s.now()
	if history := s.messages[conversationID]; len(history) > 0 {
		if last := history[len(history)-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Microsecond)
		}
	}

	msg := model.NewMessage(uuid.Must(uuid.NewV7()).String(), conversationID, content, sender, channel, ts)
	s.messages[conversationID] = append(s.messages[conversationID], msg)

	if ts.After(conv.LastMessageTime) {
		conv.LastMessageTime = ts
	}
	conv.UpdatedAt = s.now()

	return &msg, nil
}

// UpdateControlMode sets the control mode and assigned agent.
func (s *MemoryStore) UpdateControlMode(ctx context.Context, id string, mode model.ControlMode, agent *string) (*model.Conversation, error) {
	return s.mutate(id, func(c *model.Conversation) {
		c.ControlMode = mode
		c.AssignedAgent = cloneString(agent)
	})
}

// UpdateBehaviorSettings replaces the behavior settings.
func (s *MemoryStore) UpdateBehaviorSettings(ctx context.Context, id string, settings *model.BehaviorSettings) (*model.Conversation, error) {
	return s.mutate(id, func(c *model.Conversation) {
		c.BehaviorSettings = cloneBehavior(settings)
	})
}

// SetNeedsAttention sets the human-attention flag.
func (s *MemoryStore) SetNeedsAttention(ctx context.Context, id string, needs bool) (*model.Conversation, error) {
	return s.mutate(id, func(c *model.Conversation) {
		c.NeedsHumanAttention = needs
	})
}

// CloseConversation marks the conversation closed and frees its phone.
func (s *MemoryStore) CloseConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return s.mutate(id, func(c *model.Conversation) {
		if s.activeByPhone[c.CustomerPhone] == c.ID {
			delete(s.activeByPhone, c.CustomerPhone)
		}
		c.Status = model.StatusClosed
	})
}

func (s *MemoryStore) mutate(id string, fn func(*model.Conversation)) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, model.ErrNotFound)
	}
	fn(conv)
	conv.UpdatedAt = s.now()

	return cloneConversation(conv), nil
}

// Find returns a conversation without messages.
func (s *MemoryStore) Find(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, model.ErrNotFound)
	}
	return cloneConversation(conv), nil
}

// Get returns a conversation with its message history.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, model.ErrNotFound)
	}

	out := cloneConversation(conv)
	out.Messages = append([]model.Message(nil), s.messages[id]...)
	return out, nil
}

// List returns conversations matching filter, newest activity first.
func (s *MemoryStore) List(ctx context.Context, filter model.Filter) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if filter.Matches(conv) {
			convs = append(convs, *cloneConversation(conv))
		}
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastMessageTime.After(convs[j].LastMessageTime)
	})

	return convs, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.AssignedAgent = cloneString(c.AssignedAgent)
	out.CustomerID = cloneString(c.CustomerID)
	out.BehaviorSettings = cloneBehavior(c.BehaviorSettings)
	out.Messages = nil
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneBehavior(b *model.BehaviorSettings) *model.BehaviorSettings {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
