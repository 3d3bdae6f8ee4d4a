package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeCreated             EventType = "created"
	EventTypeMessageAppended     EventType = "message_appended"
	EventTypeTypingStarted       EventType = "typing_started"
	EventTypeTypingStopped       EventType = "typing_stopped"
	EventTypeReactionSet         EventType = "reaction_set"
	EventTypeBookmarkSet         EventType = "bookmark_set"
	EventTypeCleared             EventType = "cleared"
	EventTypeDeleted             EventType = "deleted"
	EventTypeGenerationFailed    EventType = "generation_failed"
	EventTypeGenerationDiscarded EventType = "generation_discarded"
)

// ConversationEvent represents an event in a conversation.
type ConversationEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Type           EventType `json:"type"`
	MessageID      string    `json:"message_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Sequence       uint64    `json:"sequence,omitempty"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
