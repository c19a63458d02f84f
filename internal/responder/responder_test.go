package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/autoshine/detailing-desk/internal/llm"
	"github.com/autoshine/detailing-desk/internal/model"
)

type fakeLLM struct {
	content string
	err     error
	got     *llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content, Model: "fake"}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

func TestGenerateReply(t *testing.T) {
	client := &fakeLLM{content: "  We can do Friday at 10am.  "}
	r := NewLLMResponder(client, Config{BusinessName: "Shine Co"})

	reply, err := r.GenerateReply(context.Background(), Request{
		Text:     "Can you come Friday?",
		Platform: model.PlatformSMS,
		Behavior: &model.BehaviorSettings{Proactivity: 90},
		History: []model.Message{
			{Sender: model.SenderAI, Content: "Hi! How can I help?"},
			{Sender: model.SenderCustomer, Content: "I need a detail"},
			{Sender: model.SenderAI, Content: "Sure, when?"},
		},
	})
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply != "We can do Friday at 10am." {
		t.Fatalf("reply = %q", reply)
	}

	msgs := client.got.Messages
	if len(msgs) != 3 {
		t.Fatalf("len(messages) = %d, want 3: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != llm.RoleUser || msgs[len(msgs)-1].Content != "Can you come Friday?" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if client.got.System == "" {
		t.Fatal("system prompt not set")
	}
}

func TestGenerateReplyErrors(t *testing.T) {
	if _, err := NewLLMResponder(nil, Config{}).GenerateReply(context.Background(), Request{Text: "hi"}); err == nil {
		t.Fatal("expected error without a client")
	}

	boom := errors.New("boom")
	if _, err := NewLLMResponder(&fakeLLM{err: boom}, Config{}).GenerateReply(context.Background(), Request{Text: "hi"}); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}

	if _, err := NewLLMResponder(&fakeLLM{content: "   "}, Config{}).GenerateReply(context.Background(), Request{Text: "hi"}); err == nil {
		t.Fatal("expected error for empty completion")
	}
}

func TestChatMessagesMergesAgentTurns(t *testing.T) {
	history := []model.Message{
		{Sender: model.SenderCustomer, Content: "hello"},
		{Sender: model.SenderAgent, Content: "Hi, this is Sam."},
		{Sender: model.SenderAI, Content: "Anything else?"},
	}
	got := chatMessages(history, "yes", 10)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}
	if got[1].Role != llm.RoleAssistant || got[1].Content != "Hi, this is Sam.\nAnything else?" {
		t.Fatalf("assistant turns not merged: %+v", got[1])
	}
}

func TestChatMessagesLimit(t *testing.T) {
	history := []model.Message{
		{Sender: model.SenderCustomer, Content: "a"},
		{Sender: model.SenderAI, Content: "b"},
		{Sender: model.SenderCustomer, Content: "c"},
	}
	got := chatMessages(history, "d", 1)
	if len(got) != 1 || got[0].Content != "c\nd" {
		t.Fatalf("got %+v", got)
	}
}
