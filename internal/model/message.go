package model

import (
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Status is the delivery state of a terminal message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
)

// Reaction is a user's feedback on an assistant message.
type Reaction string

const (
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

// Valid reports whether r is a known reaction.
func (r Reaction) Valid() bool {
	return r == ReactionLike || r == ReactionDislike
}

// Attachment describes a file sent alongside a user message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// Message is one turn in a conversation.
type Message struct {
	ID          string       `json:"id"`
	Sender      Sender       `json:"sender"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Status      Status       `json:"status"`
	Reaction    Reaction     `json:"reaction,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendMessageRequest is the request to send a user message.
type SendMessageRequest struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendMessageResponse is the response after a user message was appended.
type SendMessageResponse struct {
	Conversation *Conversation `json:"conversation"`
	Message      *Message      `json:"message"`
	Typing       bool          `json:"typing"`
}

// ReactRequest is the request to set a reaction.
type ReactRequest struct {
	Reaction Reaction `json:"reaction"`
}
