package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

func TestSimulated_Generate(t *testing.T) {
	gen := NewSimulated(
		WithDelay(time.Millisecond, 5*time.Millisecond),
		WithResponses("only reply"),
		WithSeed(1),
	)

	reply, err := gen.Generate(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "only reply", reply)
	require.Equal(t, "simulated", gen.Name())
}

func TestSimulated_DelayWithinBounds(t *testing.T) {
	gen := NewSimulated(WithSeed(42))
	for i := 0; i < 100; i++ {
		delay, reply := gen.pick()
		require.GreaterOrEqual(t, delay, DefaultMinDelay)
		require.LessOrEqual(t, delay, DefaultMaxDelay)
		require.Contains(t, DefaultResponses, reply)
	}
}

func TestSimulated_ContextCancel(t *testing.T) {
	gen := NewSimulated(WithDelay(time.Hour, time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := gen.Generate(ctx, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulated_NoResponses(t *testing.T) {
	gen := NewSimulated(WithResponses(), WithDelay(0, 0))
	_, err := gen.Generate(context.Background(), nil)
	require.Error(t, err)
}

func TestHistory(t *testing.T) {
	history := History([]model.Message{
		{Sender: model.SenderUser, Content: "q"},
		{Sender: model.SenderAssistant, Content: "a"},
	})
	require.Equal(t, []ChatMessage{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	}, history)
}
