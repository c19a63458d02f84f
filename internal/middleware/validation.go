package middleware

import (
	"errors"
	"regexp"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxMessageLength = 1600
	maxSessionLength = 128
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{5,15}$`)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > maxMessageLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidatePhone validates an E.164-style phone number.
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return errors.New("invalid phone number")
	}
	return nil
}

// ValidateSessionID validates a web chat session identifier.
func ValidateSessionID(id string) error {
	if len(id) == 0 {
		return errors.New("sessionId cannot be empty")
	}
	if len(id) > maxSessionLength {
		return errors.New("sessionId exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("sessionId must be valid UTF-8")
	}
	return nil
}
