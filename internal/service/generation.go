package service

import (
	"context"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	apperrors "github.com/capitalize-ai/conversation-engine/pkg/errors"
)

// ErrDiscarded is reported by a generation whose conversation was cleared or
// deleted before the reply could be appended.
var ErrDiscarded = apperrors.New(apperrors.CodeNotFound, "response discarded: conversation was cleared or deleted")

// Outcome is how a generation ended.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeDelivered Outcome = "delivered"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeFailed    Outcome = "failed"
)

// Generation is a handle on one queued or running assistant response.
type Generation struct {
	ConversationID string

	done    chan struct{}
	outcome Outcome
	conv    *model.Conversation
	message *model.Message
	err     error
}

func newGeneration(conversationID string) *Generation {
	return &Generation{
		ConversationID: conversationID,
		done:           make(chan struct{}),
		outcome:        OutcomePending,
	}
}

// Done is closed once the generation has finished.
func (g *Generation) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the generation finishes or ctx is done. It returns the
// conversation snapshot including the assistant reply.
func (g *Generation) Wait(ctx context.Context) (*model.Conversation, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.done:
		return g.conv, g.err
	}
}

// Outcome returns the final outcome, or OutcomePending while running.
func (g *Generation) Outcome() Outcome {
	select {
	case <-g.done:
		return g.outcome
	default:
		return OutcomePending
	}
}

// Message returns the appended assistant message once delivered.
func (g *Generation) Message() *model.Message {
	select {
	case <-g.done:
		return g.message
	default:
		return nil
	}
}

func (g *Generation) finish(outcome Outcome, conv *model.Conversation, msg *model.Message, err error) {
	g.outcome = outcome
	g.conv = conv
	g.message = msg
	g.err = err
	close(g.done)
}
