package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autoshine/detailing-desk/internal/model"
)

func TestMemoryStoreSingleActivePerPhone(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.CreateConversation(ctx, "+15550001", "Dana", model.PlatformSMS)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if first.ControlMode != model.ControlAuto || first.Status != model.StatusActive {
		t.Fatalf("new conversation = %s/%s, want auto/active", first.ControlMode, first.Status)
	}

	if _, err := s.CreateConversation(ctx, "+15550001", "Dana", model.PlatformSMS); !errors.Is(err, model.ErrActiveConversationExists) {
		t.Fatalf("second CreateConversation error = %v, want ErrActiveConversationExists", err)
	}

	found, err := s.FindActiveByPhone(ctx, "+15550001")
	if err != nil {
		t.Fatalf("FindActiveByPhone: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("FindActiveByPhone = %s, want %s", found.ID, first.ID)
	}

	if _, err := s.CloseConversation(ctx, first.ID); err != nil {
		t.Fatalf("CloseConversation: %v", err)
	}
	if _, err := s.FindActiveByPhone(ctx, "+15550001"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("FindActiveByPhone after close error = %v, want ErrNotFound", err)
	}

	second, err := s.CreateConversation(ctx, "+15550001", "Dana", model.PlatformSMS)
	if err != nil {
		t.Fatalf("CreateConversation after close: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("closed conversation was reused")
	}
}

func TestMemoryStoreMessageTimestampsIncrease(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithClock(func() time.Time { return frozen }))

	conv, err := s.CreateConversation(ctx, "+15550002", "", model.PlatformWeb)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	for _, text := range []string{"one", "two", "three"} {
		if _, err := s.AppendMessage(ctx, conv.ID, text, model.SenderCustomer, model.PlatformWeb); err != nil {
			t.Fatalf("AppendMessage(%q): %v", text, err)
		}
	}

	got, err := s.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(got.Messages))
	}
	for i := 1; i < len(got.Messages); i++ {
		if !got.Messages[i].Timestamp.After(got.Messages[i-1].Timestamp) {
			t.Fatalf("message %d timestamp %v not after %v", i, got.Messages[i].Timestamp, got.Messages[i-1].Timestamp)
		}
	}
	if got.Messages[0].Content != "one" || got.Messages[2].Content != "three" {
		t.Fatalf("messages out of insertion order: %+v", got.Messages)
	}
	if !got.Messages[0].FromCustomer {
		t.Fatal("FromCustomer not derived from sender")
	}
	if !got.LastMessageTime.Equal(got.Messages[2].Timestamp) {
		t.Fatalf("LastMessageTime = %v, want %v", got.LastMessageTime, got.Messages[2].Timestamp)
	}
}

func TestMemoryStoreUnknownID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
	if _, err := s.AppendMessage(ctx, "missing", "hi", model.SenderCustomer, model.PlatformSMS); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("AppendMessage error = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateControlMode(ctx, "missing", model.ControlManual, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("UpdateControlMode error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	conv, _ := s.CreateConversation(ctx, "+15550003", "", model.PlatformSMS)
	agent := "alice"
	updated, err := s.UpdateControlMode(ctx, conv.ID, model.ControlManual, &agent)
	if err != nil {
		t.Fatalf("UpdateControlMode: %v", err)
	}
	agent = "mallory"
	*updated.AssignedAgent = "eve"

	got, _ := s.Get(ctx, conv.ID)
	if got.Agent() != "alice" {
		t.Fatalf("stored agent = %q, want alice", got.Agent())
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	autoConv, _ := s.CreateConversation(ctx, "+1", "", model.PlatformSMS)
	manualConv, _ := s.CreateConversation(ctx, "+2", "", model.PlatformSMS)
	closedConv, _ := s.CreateConversation(ctx, "+3", "", model.PlatformSMS)

	agent := "bob"
	s.UpdateControlMode(ctx, manualConv.ID, model.ControlManual, &agent)
	s.CloseConversation(ctx, closedConv.ID)

	tests := []struct {
		filter model.Filter
		want   []string
	}{
		{model.FilterActive, []string{autoConv.ID, manualConv.ID}},
		{model.FilterManual, []string{manualConv.ID}},
		{model.FilterClosed, []string{closedConv.ID}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			convs, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			got := make(map[string]bool)
			for _, c := range convs {
				got[c.ID] = true
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List(%s) returned %d conversations, want %d", tt.filter, len(got), len(tt.want))
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Fatalf("List(%s) missing %s", tt.filter, id)
				}
			}
		})
	}
}
