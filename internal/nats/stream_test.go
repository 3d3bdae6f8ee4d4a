package nats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

func TestSubjects(t *testing.T) {
	require.Equal(t, "conv.abc.event.typing_started", EventSubject("abc", model.EventTypeTypingStarted))
	require.Equal(t, "conv.abc.event.>", ConversationFilter("abc"))
}
