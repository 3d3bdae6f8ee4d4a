// Package export serializes conversations into downloadable JSON documents.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
)

// ContentType is the media type of every export document.
const ContentType = "application/json; charset=utf-8"

// Document is a serialized export.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Record is the exported shape of one conversation. Single and bulk exports
// share it.
type Record struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	CreatedAt       time.Time       `json:"created_at"`
	LastActivity    time.Time       `json:"last_activity"`
	MessageCount    int             `json:"message_count"`
	DurationMinutes int             `json:"duration_minutes"`
	HasAttachments  bool            `json:"has_attachments"`
	IsBookmarked    bool            `json:"is_bookmarked"`
	Messages        []model.Message `json:"messages"`
}

// NewRecord builds the export record for conv.
func NewRecord(conv *model.Conversation) Record {
	messages := conv.Messages
	if messages == nil {
		messages = []model.Message{}
	}
	return Record{
		ID:              conv.ID,
		Title:           conv.Title,
		CreatedAt:       conv.CreatedAt,
		LastActivity:    conv.LastActivity,
		MessageCount:    conv.MessageCount(),
		DurationMinutes: conv.DurationMinutes(),
		HasAttachments:  conv.HasAttachments(),
		IsBookmarked:    conv.IsBookmarked,
		Messages:        messages,
	}
}

// One exports a single conversation.
func One(conv *model.Conversation) (*Document, error) {
	if conv == nil {
		return nil, errors.New("export: nil conversation")
	}
	body, err := json.MarshalIndent(NewRecord(conv), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation: %w", err)
	}
	metrics.ExportsTotal.WithLabelValues("single").Inc()
	return &Document{
		Filename:    fmt.Sprintf("conversation-%s.json", conv.ID),
		ContentType: ContentType,
		Body:        body,
	}, nil
}

// Many exports conversations in the given order. now only affects the filename.
func Many(convs []*model.Conversation, now time.Time) (*Document, error) {
	records := make([]Record, 0, len(convs))
	for _, conv := range convs {
		if conv == nil {
			continue
		}
		records = append(records, NewRecord(conv))
	}
	body, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversations: %w", err)
	}
	metrics.ExportsTotal.WithLabelValues("bulk").Inc()
	return &Document{
		Filename:    fmt.Sprintf("conversations-export-%s.json", now.Format("2006-01-02")),
		ContentType: ContentType,
		Body:        body,
	}, nil
}
