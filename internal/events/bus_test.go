package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

func receive(t *testing.T, ch <-chan *model.ConversationEvent) *model.ConversationEvent {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(logger.NewNop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := bus.Subscribe(ctx, "")
	require.NoError(t, err)
	onlyA, err := bus.Subscribe(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, &model.ConversationEvent{ID: "1", ConversationID: "b", Type: model.EventTypeCreated}))
	require.NoError(t, bus.Publish(ctx, &model.ConversationEvent{ID: "2", ConversationID: "a", Type: model.EventTypeTypingStarted}))
	require.NoError(t, bus.Publish(ctx, &model.ConversationEvent{ID: "3", ConversationID: "a", Type: model.EventTypeTypingStopped}))

	require.Equal(t, "1", receive(t, all).ID)
	require.Equal(t, "2", receive(t, all).ID)
	require.Equal(t, "3", receive(t, all).ID)

	evt := receive(t, onlyA)
	require.Equal(t, "2", evt.ID)
	require.Equal(t, model.EventTypeTypingStarted, evt.Type)
	require.Equal(t, "3", receive(t, onlyA).ID)
}

func TestBus_SubscriptionEndsWithContext(t *testing.T) {
	bus := NewBus(logger.NewNop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

type recordingPublisher struct {
	events []*model.ConversationEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, evt *model.ConversationEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestFanout(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("boom")}
	fan := Fanout{ok, failing, Nop{}}

	err := fan.Publish(context.Background(), &model.ConversationEvent{ID: "x"})
	require.ErrorContains(t, err, "boom")
	require.Len(t, ok.events, 1)
	require.Len(t, failing.events, 1)
}
