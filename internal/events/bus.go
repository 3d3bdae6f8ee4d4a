package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// Topic carries every conversation event.
const Topic = "conversation.events"

const subscriberBuffer = 64

// Bus is an in-process pub/sub for conversation events.
type Bus struct {
	pubSub *gochannel.GoChannel
	logger *logger.Logger
}

// NewBus creates an event bus. Publishing blocks until every subscriber has
// received the message, which keeps events in publish order.
func NewBus(log *logger.Logger) *Bus {
	log = log.Named("events")
	return &Bus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, NewWatermillLogger(log)),
		logger: log,
	}
}

// Publish sends evt to all current subscribers.
func (b *Bus) Publish(_ context.Context, evt *model.ConversationEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("conversation_id", evt.ConversationID)
	msg.Metadata.Set("type", string(evt.Type))

	if err := b.pubSub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe streams events until ctx is done. An empty conversationID
// receives events of every conversation. Events are dropped for a subscriber
// that falls more than a buffer behind.
func (b *Bus) Subscribe(ctx context.Context, conversationID string) (<-chan *model.ConversationEvent, error) {
	messages, err := b.pubSub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *model.ConversationEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range messages {
			msg.Ack()
			if conversationID != "" && msg.Metadata.Get("conversation_id") != conversationID {
				continue
			}

			var evt model.ConversationEvent
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				b.logger.Warn("dropping undecodable event", zap.String("message_uuid", msg.UUID), zap.Error(err))
				continue
			}

			select {
			case out <- &evt:
			default:
				b.logger.Warn("subscriber is behind, dropping event",
					zap.String("conversation_id", evt.ConversationID),
					zap.String("type", string(evt.Type)),
				)
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down and ends all subscriptions.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}
