package model

import (
	"encoding/json"
	"fmt"
)

// ForcedAction is a directive the assistant must follow on its next reply.
type ForcedAction string

const (
	ActionNone          ForcedAction = ""
	ActionShowScheduler ForcedAction = "show_scheduler"
	ActionCollectInfo   ForcedAction = "collect_info"
)

// BehaviorSettings modulate AI replies while a conversation is in auto mode.
// The numeric fields are 0-100.
type BehaviorSettings struct {
	Tone           string       `json:"tone,omitempty"`
	ForcedAction   ForcedAction `json:"forcedAction,omitempty"`
	Formality      int          `json:"formality"`
	ResponseLength int          `json:"responseLength"`
	Proactivity    int          `json:"proactivity"`
}

// DefaultDial is the value a dial takes when a settings object omits it. It
// sits in the middle band and below the upsell threshold.
const DefaultDial = 50

// UnmarshalJSON fills omitted dials with DefaultDial.
func (b *BehaviorSettings) UnmarshalJSON(data []byte) error {
	type plain BehaviorSettings
	v := plain{
		Formality:      DefaultDial,
		ResponseLength: DefaultDial,
		Proactivity:    DefaultDial,
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = BehaviorSettings(v)
	return nil
}

// Validate checks ranges and the forced action enum.
func (b *BehaviorSettings) Validate() error {
	if b == nil {
		return nil
	}
	for name, v := range map[string]int{
		"formality":      b.Formality,
		"responseLength": b.ResponseLength,
		"proactivity":    b.Proactivity,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidInput, name)
		}
	}
	switch b.ForcedAction {
	case ActionNone, ActionShowScheduler, ActionCollectInfo:
	default:
		return fmt.Errorf("%w: unknown forcedAction %q", ErrInvalidInput, b.ForcedAction)
	}
	if len(b.Tone) > 64 {
		return fmt.Errorf("%w: tone exceeds maximum length", ErrInvalidInput)
	}
	return nil
}
