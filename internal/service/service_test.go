package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/autoshine/detailing-desk/internal/broadcast"
	"github.com/autoshine/detailing-desk/internal/handoff"
	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/internal/notify"
	"github.com/autoshine/detailing-desk/internal/responder"
	"github.com/autoshine/detailing-desk/internal/store"
	"github.com/autoshine/detailing-desk/pkg/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (r *recorder) Publish(ev broadcast.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types(room string) []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EventType
	for _, ev := range r.events {
		if ev.Room == room {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (r *recorder) count(room string, typ model.EventType) int {
	n := 0
	for _, got := range r.types(room) {
		if got == typ {
			n++
		}
	}
	return n
}

type fakeResponder struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    chan struct{}
	panicMsg string
	calls    int
	last     responder.Request
}

func (f *fakeResponder) GenerateReply(ctx context.Context, req responder.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	reply, err, block, panicMsg := f.reply, f.err, f.block, f.panicMsg
	f.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if block != nil {
		<-block
	}
	return reply, err
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (f *fakeAlerter) Alert(ctx context.Context, a notify.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeGateway) SendSMS(ctx context.Context, phone, text string) (notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return notify.Result{Error: f.err.Error()}, f.err
	}
	f.sent = append(f.sent, phone+": "+text)
	return notify.Result{Success: true, SID: "SM1"}, nil
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []model.ControlEvent
	err    error
}

func (f *fakeAuditor) Record(ctx context.Context, ev *model.ControlEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, *ev)
	return nil
}

type fixture struct {
	store     *store.MemoryStore
	events    *recorder
	responder *fakeResponder
	alerter   *fakeAlerter
	gateway   *fakeGateway
	audit     *fakeAuditor
	control   *ControlService
	ingest    *IngestService
	messages  *MessageService
	convs     *ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.NewNop()
	f := &fixture{
		store:     store.NewMemoryStore(),
		events:    &recorder{},
		responder: &fakeResponder{reply: "We have openings Tuesday at 10am."},
		alerter:   &fakeAlerter{},
		gateway:   &fakeGateway{},
		audit:     &fakeAuditor{},
	}
	fanout := broadcast.NewBroadcaster(f.events, log)
	f.control = NewControlService(f.store, fanout, f.audit, log)
	f.ingest = NewIngestService(IngestConfig{
		Store:        f.store,
		Control:      f.control,
		Detector:     handoff.NewDetector(),
		Responder:    f.responder,
		Alerter:      f.alerter,
		Broadcaster:  fanout,
		ReplyTimeout: time.Second,
	}, log)
	f.messages = NewMessageService(f.store, f.gateway, fanout, log)
	f.convs = NewConversationService(f.store, log)
	return f
}

func (f *fixture) inbound(t *testing.T, platform model.Platform, phone, text string) *model.InboundReply {
	t.Helper()
	reply, err := f.ingest.Handle(context.Background(), model.InboundMessage{
		Text:     text,
		Phone:    phone,
		Platform: platform,
	})
	if err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
	return reply
}

func (f *fixture) conversation(t *testing.T, id string) *model.Conversation {
	t.Helper()
	conv, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	checkControlInvariant(t, conv)
	return conv
}

func checkControlInvariant(t *testing.T, conv *model.Conversation) {
	t.Helper()
	switch conv.ControlMode {
	case model.ControlAuto:
		if conv.AssignedAgent != nil {
			t.Fatalf("auto conversation has agent %q", *conv.AssignedAgent)
		}
	case model.ControlManual:
		if conv.AssignedAgent == nil {
			t.Fatal("manual conversation has no agent")
		}
	}
}

func senders(conv *model.Conversation) []model.Sender {
	out := make([]model.Sender, len(conv.Messages))
	for i, m := range conv.Messages {
		out[i] = m.Sender
	}
	return out
}

func equalSenders(a, b []model.Sender) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
