// Package handoff decides when a customer conversation needs a human.
package handoff

import (
	"strings"

	"github.com/autoshine/detailing-desk/internal/model"
)

// Reasons recorded for a positive detection.
const (
	ReasonExplicitRequest  = "explicit_request"
	ReasonUrgentRequest    = "urgent_request"
	ReasonRepeatedFailures = "repeated_failures"
)

var (
	humanRequestPhrases = []string{
		"talk to a person",
		"talk to a human",
		"talk to someone",
		"speak to a person",
		"speak to a human",
		"speak to someone",
		"speak with a person",
		"speak with a human",
		"real person",
		"human agent",
		"customer service rep",
		"representative",
	}

	urgencyKeywords = []string{
		"emergency",
		"urgent",
		"right away",
	}

	confusionMarkers = []string{
		"sorry",
		"apologize",
		"i don't understand",
		"i do not understand",
		"not sure what you mean",
		"could you clarify",
		"can you clarify",
		"could you rephrase",
		"can you rephrase",
	}
)

// Result is the outcome of a detection.
type Result struct {
	ShouldHandoff bool   `json:"should_handoff"`
	Reason        string `json:"reason,omitempty"`
}

// Detector applies the handoff rules in precedence order.
type Detector struct {
	// Window is how many of the most recent AI replies are inspected.
	Window int
	// Threshold is how many replies in the window must read as confused.
	Threshold int
}

// NewDetector returns a detector that escalates when two of the last three
// AI replies apologise or ask for clarification.
func NewDetector() *Detector {
	return &Detector{Window: 3, Threshold: 2}
}

// Detect evaluates text against the conversation history. The first matching
// rule wins: explicit request, then urgency, then repeated AI confusion.
func (d *Detector) Detect(text string, history []model.Message) Result {
	lower := strings.ToLower(text)

	if containsAny(lower, humanRequestPhrases) {
		return Result{ShouldHandoff: true, Reason: ReasonExplicitRequest}
	}
	if containsAny(lower, urgencyKeywords) {
		return Result{ShouldHandoff: true, Reason: ReasonUrgentRequest}
	}
	if d.repeatedFailures(history) {
		return Result{ShouldHandoff: true, Reason: ReasonRepeatedFailures}
	}
	return Result{}
}

func (d *Detector) repeatedFailures(history []model.Message) bool {
	if d.Window <= 0 || d.Threshold <= 0 {
		return false
	}

	seen, confused := 0, 0
	for i := len(history) - 1; i >= 0 && seen < d.Window; i-- {
		if history[i].Sender != model.SenderAI {
			continue
		}
		seen++
		if containsAny(strings.ToLower(history[i].Content), confusionMarkers) {
			confused++
		}
	}
	return confused >= d.Threshold
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
