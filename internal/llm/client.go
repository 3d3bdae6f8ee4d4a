// Package llm defines the response-generation contract and a simulated
// implementation of it.
package llm

import (
	"context"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// ChatMessage represents a chat message for the generator.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces the assistant's next reply for a conversation history.
//
// Implementations must honor ctx cancellation. Callers guarantee that at most
// one Generate call is in flight per conversation.
type Generator interface {
	// Generate returns the reply text for history.
	Generate(ctx context.Context, history []ChatMessage) (string, error)

	// Name returns the generator name, used as a metrics label.
	Name() string
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, history []ChatMessage) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, history []ChatMessage) (string, error) {
	return f(ctx, history)
}

// Name returns "func".
func (f GeneratorFunc) Name() string {
	return "func"
}

// History converts conversation messages to generator input.
func History(messages []model.Message) []ChatMessage {
	out := make([]ChatMessage, len(messages))
	for i, msg := range messages {
		out[i] = ChatMessage{
			Role:    string(msg.Sender),
			Content: msg.Content,
		}
	}
	return out
}
