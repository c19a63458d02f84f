package handoff

import (
	"testing"

	"github.com/autoshine/detailing-desk/internal/model"
)

func aiMessage(content string) model.Message {
	return model.Message{Sender: model.SenderAI, Content: content}
}

func customerMessage(content string) model.Message {
	return model.Message{Sender: model.SenderCustomer, FromCustomer: true, Content: content}
}

func TestDetect(t *testing.T) {
	confusedHistory := []model.Message{
		customerMessage("can you do the thing"),
		aiMessage("Sorry, I'm not sure what you mean."),
		customerMessage("the thing!"),
		aiMessage("I apologize, could you clarify which service?"),
	}

	tests := []struct {
		name    string
		text    string
		history []model.Message
		want    Result
	}{
		{
			name: "explicit request",
			text: "Can I talk to a person please",
			want: Result{ShouldHandoff: true, Reason: ReasonExplicitRequest},
		},
		{
			name: "explicit request mixed case",
			text: "I want a REAL PERSON",
			want: Result{ShouldHandoff: true, Reason: ReasonExplicitRequest},
		},
		{
			name: "urgent keyword",
			text: "I need help right away",
			want: Result{ShouldHandoff: true, Reason: ReasonUrgentRequest},
		},
		{
			name: "emergency",
			text: "This is an EMERGENCY",
			want: Result{ShouldHandoff: true, Reason: ReasonUrgentRequest},
		},
		{
			name: "explicit beats urgent",
			text: "urgent: let me speak to a human",
			want: Result{ShouldHandoff: true, Reason: ReasonExplicitRequest},
		},
		{
			name:    "repeated failures",
			text:    "ugh",
			history: confusedHistory,
			want:    Result{ShouldHandoff: true, Reason: ReasonRepeatedFailures},
		},
		{
			name:    "urgent beats repeated failures",
			text:    "urgent please",
			history: confusedHistory,
			want:    Result{ShouldHandoff: true, Reason: ReasonUrgentRequest},
		},
		{
			name: "single confused reply is not enough",
			text: "ok",
			history: []model.Message{
				aiMessage("Sorry, could you rephrase?"),
				aiMessage("Great, your wash is booked for Friday."),
			},
			want: Result{},
		},
		{
			name: "confusion outside the window is ignored",
			text: "ok",
			history: []model.Message{
				aiMessage("Sorry, I don't understand."),
				aiMessage("Sorry, could you clarify?"),
				aiMessage("We open at 8am."),
				aiMessage("A full detail takes about three hours."),
				aiMessage("You're welcome!"),
			},
			want: Result{},
		},
		{
			name:    "customer apologies do not count",
			text:    "thanks",
			history: []model.Message{customerMessage("sorry"), customerMessage("sorry again")},
			want:    Result{},
		},
		{
			name: "plain question",
			text: "How much is a ceramic coating?",
			want: Result{},
		},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Detect(tt.text, tt.history); got != tt.want {
				t.Fatalf("Detect(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}
