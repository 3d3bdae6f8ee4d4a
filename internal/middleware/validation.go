package middleware

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// MaxMessageRunes bounds the length of a message typed by the user.
const MaxMessageRunes = 2000

// MaxAttachments bounds the attachments sent with one message.
const MaxAttachments = 10

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageRunes {
		return fmt.Errorf("content exceeds %d characters", MaxMessageRunes)
	}
	return nil
}

// ValidateAttachments validates attachment descriptors.
func ValidateAttachments(attachments []model.Attachment) error {
	if len(attachments) > MaxAttachments {
		return fmt.Errorf("at most %d attachments are allowed", MaxAttachments)
	}
	for _, a := range attachments {
		if strings.TrimSpace(a.Name) == "" {
			return errors.New("attachment name cannot be empty")
		}
		if a.SizeBytes < 0 {
			return errors.New("attachment size cannot be negative")
		}
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

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateReaction validates a reaction value.
func ValidateReaction(r model.Reaction) error {
	if !r.Valid() {
		return fmt.Errorf("reaction must be %q or %q", model.ReactionLike, model.ReactionDislike)
	}
	return nil
}
