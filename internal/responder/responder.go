// Package responder produces assistant replies for customer conversations.
package responder

import (
	"context"
	"errors"
	"strings"

	"github.com/autoshine/detailing-desk/internal/llm"
	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/pkg/metrics"
)

// Request is the input to one reply generation.
type Request struct {
	Text     string
	Phone    string
	Platform model.Platform
	Behavior *model.BehaviorSettings
	// History is the prior conversation, oldest first, excluding Text.
	History []model.Message
}

// Responder generates the assistant's reply text.
type Responder interface {
	GenerateReply(ctx context.Context, req Request) (string, error)
}

// Config configures an LLMResponder.
type Config struct {
	Model        string
	BusinessName string
	HistoryLimit int
	MaxTokens    int
}

// LLMResponder asks an LLM provider for the reply.
type LLMResponder struct {
	client llm.Client
	cfg    Config
}

// NewLLMResponder creates a responder backed by client.
func NewLLMResponder(client llm.Client, cfg Config) *LLMResponder {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.BusinessName == "" {
		cfg.BusinessName = "our shop"
	}
	return &LLMResponder{client: client, cfg: cfg}
}

// GenerateReply returns the assistant text for req.
func (r *LLMResponder) GenerateReply(ctx context.Context, req Request) (string, error) {
	if r.client == nil {
		return "", errors.New("no LLM provider configured")
	}

	resp, err := r.client.Complete(ctx, &llm.CompletionRequest{
		Model:       r.cfg.Model,
		System:      SystemPrompt(r.cfg.BusinessName, req.Platform, req.Behavior),
		Messages:    chatMessages(req.History, req.Text, r.cfg.HistoryLimit),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: 0.4,
	})
	if err != nil {
		return "", err
	}

	metrics.RecordLLMCall(resp.Model, resp.TokensIn, resp.TokensOut)

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", errors.New("empty completion")
	}
	return reply, nil
}

// chatMessages maps stored history onto provider roles. Agent turns count as
// assistant turns; consecutive same-role turns are merged because providers
// reject them.
func chatMessages(history []model.Message, text string, limit int) []llm.ChatMessage {
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	var out []llm.ChatMessage
	add := func(role, content string) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + content
			return
		}
		out = append(out, llm.ChatMessage{Role: role, Content: content})
	}

	for _, m := range history {
		role := llm.RoleAssistant
		if m.Sender == model.SenderCustomer {
			role = llm.RoleUser
		}
		add(role, m.Content)
	}
	add(llm.RoleUser, text)

	// Conversations must open with a user turn.
	for len(out) > 0 && out[0].Role != llm.RoleUser {
		out = out[1:]
	}
	return out
}
