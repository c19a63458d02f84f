package model

import "errors"

var (
	// ErrNotFound is returned for unknown conversation or message ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream wraps failures of the AI responder, SMS gateway or store.
	ErrUpstream = errors.New("upstream failure")

	// ErrConversationClosed is returned for control changes on a closed conversation.
	ErrConversationClosed = errors.New("conversation closed")

	// ErrActiveConversationExists is returned by stores when a phone already
	// has an active conversation.
	ErrActiveConversationExists = errors.New("active conversation exists")
)
