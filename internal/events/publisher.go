// Package events distributes conversation events to in-process observers
// and external sinks.
package events

import (
	"context"
	"errors"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// Publisher publishes conversation events.
type Publisher interface {
	Publish(ctx context.Context, evt *model.ConversationEvent) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, *model.ConversationEvent) error { return nil }

// Fanout publishes each event to every publisher, collecting errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt *model.ConversationEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
