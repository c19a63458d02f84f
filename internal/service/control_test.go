package service

import (
	"context"
	"errors"
	"testing"

	"github.com/autoshine/detailing-desk/internal/broadcast"
	"github.com/autoshine/detailing-desk/internal/model"
)

func TestTakeoverThenAgentReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	phone := "+15552340001"

	first := f.inbound(t, model.PlatformSMS, phone, "Hi, what are your prices?")

	conv, err := f.control.Takeover(ctx, first.ConversationID, "alice")
	if err != nil {
		t.Fatalf("Takeover: %v", err)
	}
	if conv.ControlMode != model.ControlManual || conv.Agent() != "alice" {
		t.Fatalf("after takeover = %s/%q, want manual/alice", conv.ControlMode, conv.Agent())
	}

	calls := f.responder.callCount()
	reply := f.inbound(t, model.PlatformSMS, phone, "Hello?")
	if reply.Kind != model.ReplyHolding || reply.Reply != HoldingManual {
		t.Fatalf("reply = %s %q, want manual holding", reply.Kind, reply.Reply)
	}
	if f.responder.callCount() != calls {
		t.Fatal("responder called during manual control")
	}

	msg, err := f.messages.Send(ctx, first.ConversationID, "alice", "Hi! Full detail is $180.")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Sender != model.SenderAgent || msg.Channel != model.PlatformSMS {
		t.Fatalf("message = %+v, want agent sms message", msg)
	}
	if len(f.gateway.sent) != 1 || f.gateway.sent[0] != phone+": Hi! Full detail is $180." {
		t.Fatalf("gateway sent = %v", f.gateway.sent)
	}

	got := senders(f.conversation(t, first.ConversationID))
	want := []model.Sender{model.SenderCustomer, model.SenderAI, model.SenderCustomer, model.SenderAgent}
	if !equalSenders(got, want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	phone := "+15552340002"

	first := f.inbound(t, model.PlatformSMS, phone, "hi")
	if _, err := f.control.Takeover(ctx, first.ConversationID, "alice"); err != nil {
		t.Fatalf("Takeover: %v", err)
	}

	conv, err := f.control.Pause(ctx, first.ConversationID, "alice")
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if conv.ControlMode != model.ControlPaused || conv.Agent() != "alice" {
		t.Fatalf("after pause = %s/%q, want paused/alice", conv.ControlMode, conv.Agent())
	}

	reply := f.inbound(t, model.PlatformSMS, phone, "still there?")
	if reply.Kind != model.ReplyHolding || reply.Reply != HoldingPaused {
		t.Fatalf("reply = %s %q, want paused holding", reply.Kind, reply.Reply)
	}

	conv, err = f.control.Resume(ctx, first.ConversationID, "alice")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if conv.ControlMode != model.ControlAuto || conv.AssignedAgent != nil {
		t.Fatalf("after resume = %s/%q, want auto with no agent", conv.ControlMode, conv.Agent())
	}

	reply = f.inbound(t, model.PlatformSMS, phone, "ok")
	if reply.Kind != model.ReplyAI {
		t.Fatalf("reply kind = %s, want ai", reply.Kind)
	}
}

func TestTakeoverIdempotentAndReplaceable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.inbound(t, model.PlatformSMS, "+15552340003", "hi")
	id := first.ConversationID

	a, err := f.control.Takeover(ctx, id, "alice")
	if err != nil {
		t.Fatalf("Takeover: %v", err)
	}
	b, err := f.control.Takeover(ctx, id, "alice")
	if err != nil {
		t.Fatalf("second Takeover: %v", err)
	}
	if a.ControlMode != b.ControlMode || a.Agent() != b.Agent() {
		t.Fatalf("repeated takeover changed state: %s/%q then %s/%q", a.ControlMode, a.Agent(), b.ControlMode, b.Agent())
	}

	c, err := f.control.Takeover(ctx, id, "bob")
	if err != nil {
		t.Fatalf("Takeover by bob: %v", err)
	}
	if c.Agent() != "bob" {
		t.Fatalf("agent = %q, want bob", c.Agent())
	}
}

func TestTakeoverClearsAttention(t *testing.T) {
	f := newFixture(t)
	reply := f.inbound(t, model.PlatformSMS, "+15552340004", "let me speak to a human")

	conv, err := f.control.Takeover(context.Background(), reply.ConversationID, "alice")
	if err != nil {
		t.Fatalf("Takeover: %v", err)
	}
	if conv.NeedsHumanAttention {
		t.Fatal("needsHumanAttention still set after takeover")
	}
	if conv.Agent() != "alice" {
		t.Fatalf("agent = %q, want alice", conv.Agent())
	}
}

func TestReturnToAIClearsAttention(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		op   func(f *fixture, id string) (*model.Conversation, error)
	}{
		{"handoff", func(f *fixture, id string) (*model.Conversation, error) { return f.control.Handoff(ctx, id, "alice") }},
		{"resume", func(f *fixture, id string) (*model.Conversation, error) { return f.control.Resume(ctx, id, "alice") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			reply := f.inbound(t, model.PlatformSMS, "+15552340010", "let me speak to a human")
			if !f.conversation(t, reply.ConversationID).NeedsHumanAttention {
				t.Fatal("escalation did not flag the conversation")
			}

			conv, err := tt.op(f, reply.ConversationID)
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if conv.ControlMode != model.ControlAuto || conv.NeedsHumanAttention {
				t.Fatalf("after %s = %s attention=%v, want auto without attention", tt.name, conv.ControlMode, conv.NeedsHumanAttention)
			}
			if f.conversation(t, reply.ConversationID).NeedsHumanAttention {
				t.Fatal("attention flag still stored")
			}
		})
	}
}

func TestTakeoverRequiresAgent(t *testing.T) {
	f := newFixture(t)
	reply := f.inbound(t, model.PlatformSMS, "+15552340005", "hi")

	if _, err := f.control.Takeover(context.Background(), reply.ConversationID, "  "); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestTransitionsOnUnknownConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ops := map[string]func() error{
		"takeover": func() error { _, err := f.control.Takeover(ctx, "missing", "alice"); return err },
		"handoff":  func() error { _, err := f.control.Handoff(ctx, "missing", "alice"); return err },
		"pause":    func() error { _, err := f.control.Pause(ctx, "missing", "alice"); return err },
		"resume":   func() error { _, err := f.control.Resume(ctx, "missing", "alice"); return err },
		"close":    func() error { _, err := f.control.Close(ctx, "missing", "alice"); return err },
		"behavior": func() error {
			_, err := f.control.UpdateBehavior(ctx, "missing", &model.BehaviorSettings{})
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestClosedConversationRejectsTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reply := f.inbound(t, model.PlatformSMS, "+15552340006", "hi")
	id := reply.ConversationID

	if _, err := f.control.Close(ctx, id, "alice"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	updates := f.events.count(broadcast.MonitoringRoom, model.EventConversationUpdated)
	modeChanges := f.events.count(broadcast.MonitoringRoom, model.EventControlModeChanged)
	audits := len(f.audit.events)

	conv, err := f.control.Close(ctx, id, "alice")
	if err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !conv.Closed() {
		t.Fatal("conversation not closed")
	}
	if got := f.events.count(broadcast.MonitoringRoom, model.EventConversationUpdated); got != updates+1 {
		t.Fatalf("conversation_updated events %d -> %d, want a re-broadcast", updates, got)
	}
	if got := f.events.count(broadcast.MonitoringRoom, model.EventControlModeChanged); got != modeChanges+1 {
		t.Fatalf("control_mode_changed events %d -> %d, want a re-broadcast", modeChanges, got)
	}
	if len(f.audit.events) != audits {
		t.Fatalf("repeated close wrote %d audit records", len(f.audit.events)-audits)
	}

	if _, err := f.control.Takeover(ctx, id, "alice"); !errors.Is(err, model.ErrConversationClosed) {
		t.Fatalf("Takeover error = %v, want ErrConversationClosed", err)
	}
	if _, err := f.messages.Send(ctx, id, "alice", "hello?"); !errors.Is(err, model.ErrConversationClosed) {
		t.Fatalf("Send error = %v, want ErrConversationClosed", err)
	}
}

func TestEveryTransitionBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reply := f.inbound(t, model.PlatformSMS, "+15552340007", "hi")
	id := reply.ConversationID

	steps := []func() (*model.Conversation, error){
		func() (*model.Conversation, error) { return f.control.Takeover(ctx, id, "alice") },
		func() (*model.Conversation, error) { return f.control.Pause(ctx, id, "alice") },
		func() (*model.Conversation, error) { return f.control.Resume(ctx, id, "alice") },
		func() (*model.Conversation, error) { return f.control.Takeover(ctx, id, "bob") },
		func() (*model.Conversation, error) { return f.control.Handoff(ctx, id, "bob") },
		func() (*model.Conversation, error) { return f.control.Close(ctx, id, "bob") },
	}
	for i, step := range steps {
		before := f.events.count(broadcast.MonitoringRoom, model.EventControlModeChanged)
		conv, err := step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		checkControlInvariant(t, conv)
		if after := f.events.count(broadcast.MonitoringRoom, model.EventControlModeChanged); after != before+1 {
			t.Fatalf("step %d: control_mode_changed events %d -> %d", i, before, after)
		}
	}

	if len(f.audit.events) != len(steps) {
		t.Fatalf("audit records = %d, want %d", len(f.audit.events), len(steps))
	}
	first := f.audit.events[0]
	if first.From != model.ControlAuto || first.To != model.ControlManual || first.Agent != "alice" {
		t.Fatalf("first audit record = %+v", first)
	}
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.audit.err = errors.New("jetstream unavailable")
	reply := f.inbound(t, model.PlatformSMS, "+15552340008", "hi")

	if _, err := f.control.Takeover(context.Background(), reply.ConversationID, "alice"); err != nil {
		t.Fatalf("Takeover: %v", err)
	}
}

func TestUpdateBehavior(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reply := f.inbound(t, model.PlatformSMS, "+15552340009", "hi")
	id := reply.ConversationID

	bad := &model.BehaviorSettings{Formality: 150}
	if _, err := f.control.UpdateBehavior(ctx, id, bad); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}

	settings := &model.BehaviorSettings{Tone: "friendly", ForcedAction: model.ActionShowScheduler, Formality: 40}
	conv, err := f.control.UpdateBehavior(ctx, id, settings)
	if err != nil {
		t.Fatalf("UpdateBehavior: %v", err)
	}
	if conv.BehaviorSettings == nil || conv.BehaviorSettings.ForcedAction != model.ActionShowScheduler {
		t.Fatalf("behavior = %+v", conv.BehaviorSettings)
	}
	if conv.ControlMode != model.ControlAuto {
		t.Fatalf("behavior update changed control mode to %s", conv.ControlMode)
	}
	if f.events.count(broadcast.MonitoringRoom, model.EventBehaviorUpdated) != 1 {
		t.Fatal("behavior_updated not broadcast")
	}
}
