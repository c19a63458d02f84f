package responder

import (
	"fmt"
	"strings"

	"github.com/autoshine/detailing-desk/internal/model"
)

// Band is a coarse bucket for a 0-100 behavior dial.
type Band int

const (
	BandLow Band = iota
	BandMid
	BandHigh
)

// BandOf maps a dial value to its band: below 30 is low, 70 and above is high.
func BandOf(v int) Band {
	switch {
	case v < 30:
		return BandLow
	case v < 70:
		return BandMid
	default:
		return BandHigh
	}
}

const proactivityThreshold = 60

// Directives renders behavior settings as prompt instructions. Nil settings
// produce no directives.
func Directives(b *model.BehaviorSettings) []string {
	if b == nil {
		return nil
	}

	var out []string
	if tone := strings.TrimSpace(b.Tone); tone != "" {
		out = append(out, fmt.Sprintf("Use a %s tone.", tone))
	}

	switch BandOf(b.Formality) {
	case BandLow:
		out = append(out, "Keep the language casual and friendly.")
	case BandMid:
		out = append(out, "Use a balanced register: professional but approachable.")
	case BandHigh:
		out = append(out, "Use formal, polished language.")
	}

	switch BandOf(b.ResponseLength) {
	case BandLow:
		out = append(out, "Keep replies brief, one or two sentences.")
	case BandMid:
		out = append(out, "Keep replies moderate in length, a short paragraph at most.")
	case BandHigh:
		out = append(out, "Give detailed, thorough replies.")
	}

	if b.Proactivity > proactivityThreshold {
		out = append(out, "Proactively suggest upsells such as add-on services or maintenance packages when relevant.")
	}

	switch b.ForcedAction {
	case model.ActionShowScheduler:
		out = append(out, "In this reply, direct the customer to book a time using the online scheduler.")
	case model.ActionCollectInfo:
		out = append(out, "In this reply, ask the customer for their name, vehicle make and model, and preferred appointment time.")
	}

	return out
}

// SystemPrompt builds the assistant's system prompt for one reply.
func SystemPrompt(business string, platform model.Platform, b *model.BehaviorSettings) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are the customer assistant for %s, a mobile auto-detailing business. ", business)
	sb.WriteString("Answer questions about services, pricing and availability, and help customers book appointments. ")
	sb.WriteString("Never invent prices or open slots you were not told about; offer to have a team member follow up instead.")

	if platform == model.PlatformSMS {
		sb.WriteString("\nThis conversation is over SMS: plain text only, no markdown, keep it under 320 characters.")
	} else {
		sb.WriteString("\nThis conversation is in the website chat widget: short paragraphs, no markdown headings.")
	}

	if directives := Directives(b); len(directives) > 0 {
		sb.WriteString("\n\nOperator instructions for this conversation:")
		for _, d := range directives {
			sb.WriteString("\n- ")
			sb.WriteString(d)
		}
	}

	return sb.String()
}
