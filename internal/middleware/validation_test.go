package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"ok", "hello", false},
		{"empty", "", true},
		{"whitespace", "  \n ", true},
		{"at limit", strings.Repeat("é", MaxMessageRunes), false},
		{"over limit", strings.Repeat("a", MaxMessageRunes+1), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateIDs(t *testing.T) {
	id := uuid.Must(uuid.NewV7()).String()
	require.NoError(t, ValidateConversationID(id))
	require.NoError(t, ValidateMessageID(id))
	require.Error(t, ValidateConversationID("conv_123"))
	require.Error(t, ValidateMessageID(""))
}

func TestValidateReaction(t *testing.T) {
	require.NoError(t, ValidateReaction(model.ReactionLike))
	require.NoError(t, ValidateReaction(model.ReactionDislike))
	require.Error(t, ValidateReaction("meh"))
}

func TestValidateAttachments(t *testing.T) {
	require.NoError(t, ValidateAttachments(nil))
	require.NoError(t, ValidateAttachments([]model.Attachment{{Name: "a.txt", SizeBytes: 3}}))
	require.Error(t, ValidateAttachments([]model.Attachment{{Name: " "}}))
	require.Error(t, ValidateAttachments([]model.Attachment{{Name: "a", SizeBytes: -1}}))
	require.Error(t, ValidateAttachments(make([]model.Attachment, MaxAttachments+1)))
}
