package filter

import (
	"strings"
	"time"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// Filter returns the conversations matching query and c, in input order.
// It never modifies convs.
func Filter(convs []*model.Conversation, query string, c Criteria, now time.Time) []*model.Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]*model.Conversation, 0, len(convs))
	for _, conv := range convs {
		if matchesText(conv, q) && Matches(conv, c, now) {
			out = append(out, conv)
		}
	}
	return out
}

// Matches reports whether conv satisfies every active criterion.
func Matches(conv *model.Conversation, c Criteria, now time.Time) bool {
	if maxAge, ok := c.DateRange.MaxAge(); ok && now.Sub(conv.LastActivity) > maxAge {
		return false
	}
	if !c.MessageCount.Matches(conv.MessageCount()) {
		return false
	}
	if !c.Duration.Matches(conv.DurationMinutes()) {
		return false
	}
	if c.HasAttachmentsOnly && !conv.HasAttachments() {
		return false
	}
	return true
}

// q must already be lowercased and trimmed.
func matchesText(conv *model.Conversation, q string) bool {
	if q == "" {
		return true
	}
	for _, field := range []string{conv.Title, conv.Preview(), conv.FirstMessage()} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// IDs returns the ids of convs in order.
func IDs(convs []*model.Conversation) []string {
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	return ids
}
