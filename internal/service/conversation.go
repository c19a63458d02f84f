package service

import (
	"context"

	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/internal/store"
	"github.com/autoshine/detailing-desk/pkg/logger"
)

// ConversationService serves dashboard reads.
type ConversationService struct {
	store  store.Store
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  st,
		logger: log.Named("conversations"),
	}
}

// Get retrieves a conversation with its messages.
func (s *ConversationService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return s.store.Get(ctx, id)
}

// Find retrieves a conversation without loading its messages.
func (s *ConversationService) Find(ctx context.Context, id string) (*model.Conversation, error) {
	return s.store.Find(ctx, id)
}

// List retrieves conversations matching filter, most recent activity first.
func (s *ConversationService) List(ctx context.Context, filter model.Filter) (*model.ListConversationsResponse, error) {
	convs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	}, nil
}
