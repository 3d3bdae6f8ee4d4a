// Package model defines data structures for the conversation engine.
package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TitleMaxRunes bounds the title derived from a conversation's first message.
const TitleMaxRunes = 50

// Conversation represents a conversation thread. This is also the persisted
// record shape.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IsBookmarked bool      `json:"is_bookmarked,omitempty"`
}

// DeriveTitle builds a title from the first message content. The ellipsis is
// only appended when the content was actually cut.
func DeriveTitle(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= TitleMaxRunes {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:TitleMaxRunes])) + "..."
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, msg := range c.Messages {
		if msg.Attachments != nil {
			msg.Attachments = append([]Attachment(nil), msg.Attachments...)
		}
		out.Messages[i] = msg
	}
	return &out
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// DurationMinutes returns the whole minutes between creation and last activity.
func (c *Conversation) DurationMinutes() int {
	d := c.LastActivity.Sub(c.CreatedAt)
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

// HasAttachments reports whether any message carries attachments.
func (c *Conversation) HasAttachments() bool {
	for _, msg := range c.Messages {
		if len(msg.Attachments) > 0 {
			return true
		}
	}
	return false
}

// FirstMessage returns the content of the first message, if any.
func (c *Conversation) FirstMessage() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].Content
}

// Preview returns the latest assistant reply, falling back to the latest
// message of any sender.
func (c *Conversation) Preview() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Sender == SenderAssistant {
			return c.Messages[i].Content
		}
	}
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content
}

// MessageIndex returns the index of the message with the given id, or -1.
func (c *Conversation) MessageIndex(messageID string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// Summary materializes the derived fields for listing.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:              c.ID,
		Title:           c.Title,
		Preview:         c.Preview(),
		FirstMessage:    c.FirstMessage(),
		CreatedAt:       c.CreatedAt,
		LastActivity:    c.LastActivity,
		MessageCount:    c.MessageCount(),
		DurationMinutes: c.DurationMinutes(),
		HasAttachments:  c.HasAttachments(),
		IsBookmarked:    c.IsBookmarked,
	}
}

// ConversationSummary is the history-view shape of a conversation.
type ConversationSummary struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Preview         string    `json:"preview"`
	FirstMessage    string    `json:"first_message"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
	MessageCount    int       `json:"message_count"`
	DurationMinutes int       `json:"duration_minutes"`
	HasAttachments  bool      `json:"has_attachments"`
	IsBookmarked    bool      `json:"is_bookmarked"`
}

// Summaries maps conversations to summaries, preserving order.
func Summaries(convs []*Conversation) []ConversationSummary {
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.Summary())
	}
	return out
}

// ConversationResponse is a conversation plus its in-flight state.
type ConversationResponse struct {
	*Conversation
	Typing bool `json:"typing"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
	HasMore       bool                  `json:"has_more"`
}

// ItemOutcome reports the result of one item of a bulk operation.
type ItemOutcome struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// NewItemOutcome builds an outcome from an error.
func NewItemOutcome(id string, err error) ItemOutcome {
	if err != nil {
		return ItemOutcome{ID: id, Error: err.Error(), Err: err}
	}
	return ItemOutcome{ID: id, OK: true}
}

// SucceededIDs returns the ids of the successful outcomes, in order.
func SucceededIDs(outcomes []ItemOutcome) []string {
	ids := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK {
			ids = append(ids, o.ID)
		}
	}
	return ids
}
