// Package service implements the conversation pipeline and the history view.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/events"
	"github.com/capitalize-ai/conversation-engine/internal/llm"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	apperrors "github.com/capitalize-ai/conversation-engine/pkg/errors"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
	"github.com/capitalize-ai/conversation-engine/pkg/tracing"
)

// DefaultGenerationTimeout bounds a single Generate call.
const DefaultGenerationTimeout = 30 * time.Second

// Clipboard receives copied message text.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// ticket identifies the conversation instance a generation was issued for.
type ticket struct {
	id        string
	epoch     uint64
	createdAt time.Time
}

// flight is the FIFO chain of generations for one conversation.
type flight struct {
	tail    chan struct{}
	pending int
}

// MessageService appends messages and drives assistant responses.
type MessageService struct {
	store             *store.ConversationStore
	generator         llm.Generator
	publisher         events.Publisher
	logger            *logger.Logger
	generationTimeout time.Duration

	// writeMu serializes load-modify-save sequences and deletions.
	writeMu sync.Mutex

	mu        sync.Mutex
	flights   map[string]*flight
	epochs    map[string]uint64
	cleared   map[string]struct{}
	observers []events.Publisher
	wg        sync.WaitGroup
}

// MessageOption configures a MessageService.
type MessageOption func(*MessageService)

// WithGenerationTimeout bounds each Generate call.
func WithGenerationTimeout(d time.Duration) MessageOption {
	return func(s *MessageService) {
		if d > 0 {
			s.generationTimeout = d
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) MessageOption {
	return func(s *MessageService) { s.publisher = p }
}

// NewMessageService creates a new message service.
func NewMessageService(
	st *store.ConversationStore,
	generator llm.Generator,
	log *logger.Logger,
	opts ...MessageOption,
) *MessageService {
	s := &MessageService{
		store:             st,
		generator:         generator,
		publisher:         events.Nop{},
		logger:            log.Named("pipeline"),
		generationTimeout: DefaultGenerationTimeout,
		flights:           make(map[string]*flight),
		epochs:            make(map[string]uint64),
		cleared:           make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddObserver registers an in-process observer for every published event.
func (s *MessageService) AddObserver(p events.Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, p)
}

// Get returns the persisted conversation and whether a reply is in flight.
func (s *MessageService) Get(ctx context.Context, id string) (*model.ConversationResponse, error) {
	conv, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.ConversationResponse{Conversation: conv, Typing: s.IsTyping(id)}, nil
}

// IsTyping reports whether an assistant response is queued or running.
func (s *MessageService) IsTyping(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.flights[conversationID]
	return ok
}

// WasCleared reports whether id was cleared and has not been recreated or
// deleted since.
func (s *MessageService) WasCleared(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cleared[id]
	return ok
}

// AppendUserMessage appends a user message and persists the result. A nil
// conv, or a cleared conversation that is no longer persisted, starts a new
// conversation titled from text. conv itself is never modified.
func (s *MessageService) AppendUserMessage(ctx context.Context, conv *model.Conversation, text string, attachments ...model.Attachment) (*model.Conversation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "pipeline.AppendUserMessage")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.InvalidArg("message content is required")
	}

	s.writeMu.Lock()
	base, created, err := s.appendBase(ctx, conv, text)
	if err != nil {
		s.writeMu.Unlock()
		span.RecordError(err)
		return nil, err
	}

	now := s.store.Now()
	if created {
		now = base.CreatedAt
	}
	msg := model.Message{
		ID:        s.store.NewID(),
		Sender:    model.SenderUser,
		Content:   text,
		Timestamp: now,
		Status:    model.StatusSent,
	}
	if len(attachments) > 0 {
		msg.Attachments = append([]model.Attachment(nil), attachments...)
	}

	next := base.Clone()
	next.Messages = append(next.Messages, msg)
	next.LastActivity = now

	if err := s.store.Save(ctx, next); err != nil {
		s.writeMu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if created {
		s.mu.Lock()
		delete(s.cleared, next.ID)
		s.mu.Unlock()
	}
	s.writeMu.Unlock()

	span.SetAttributes(attribute.String("conversation.id", next.ID))
	metrics.MessagesTotal.WithLabelValues(string(model.SenderUser)).Inc()
	if created {
		metrics.ConversationsTotal.Inc()
		s.publish(ctx, next.ID, model.EventTypeCreated, "", "")
		s.logger.Info("conversation created", zap.String("conversation_id", next.ID))
	}
	s.publish(ctx, next.ID, model.EventTypeMessageAppended, msg.ID, "")

	return next, nil
}

// appendBase resolves the snapshot a user message is appended to.
func (s *MessageService) appendBase(ctx context.Context, conv *model.Conversation, text string) (*model.Conversation, bool, error) {
	if conv == nil || conv.ID == "" {
		return s.store.Create(text), true, nil
	}

	latest, err := s.store.Load(ctx, conv.ID)
	if err == nil {
		return latest, false, nil
	}
	if apperrors.HasCode(err, apperrors.CodeNotFound) && len(conv.Messages) == 0 {
		// A cleared conversation is recreated under the same id.
		fresh := s.store.Create(text)
		fresh.ID = conv.ID
		return fresh, true, nil
	}
	return nil, false, err
}

// RequestAssistantResponse queues an assistant response for conv. Requests for
// the same conversation run one at a time in request order. The returned
// Generation reports the outcome; the work continues after ctx is canceled.
func (s *MessageService) RequestAssistantResponse(ctx context.Context, conv *model.Conversation) (*Generation, error) {
	if conv == nil || conv.ID == "" {
		return nil, apperrors.InvalidArg("conversation id is required")
	}

	current, err := s.store.Load(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	t := ticket{id: current.ID, epoch: s.epochs[current.ID], createdAt: current.CreatedAt}
	f, ok := s.flights[t.id]
	if !ok {
		f = &flight{}
		s.flights[t.id] = f
	}
	prev := f.tail
	done := make(chan struct{})
	f.tail = done
	f.pending++
	first := f.pending == 1
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.GenerationsInFlight.Inc()
	if first {
		s.publish(ctx, t.id, model.EventTypeTypingStarted, "", "")
	}

	gen := newGeneration(t.id)
	go s.generate(context.WithoutCancel(ctx), t, f, prev, done, gen)
	return gen, nil
}

// Send appends a user message and then requests the assistant's reply.
func (s *MessageService) Send(ctx context.Context, conv *model.Conversation, text string, attachments ...model.Attachment) (*model.Conversation, *Generation, error) {
	updated, err := s.AppendUserMessage(ctx, conv, text, attachments...)
	if err != nil {
		return nil, nil, err
	}
	gen, err := s.RequestAssistantResponse(ctx, updated)
	if err != nil {
		return updated, nil, err
	}
	return updated, gen, nil
}

func (s *MessageService) generate(ctx context.Context, t ticket, f *flight, prev <-chan struct{}, done chan struct{}, gen *Generation) {
	defer s.wg.Done()
	log := s.logger.WithConversation(t.id)

	ctx, span := tracing.Tracer().Start(ctx, "pipeline.Generate")
	span.SetAttributes(attribute.String("conversation.id", t.id))
	defer span.End()

	if prev != nil {
		<-prev
	}

	start := time.Now()
	outcome, conv, msg, err := s.runGeneration(ctx, t)
	metrics.RecordGeneration(s.generator.Name(), string(outcome), time.Since(start).Seconds())

	switch outcome {
	case OutcomeDelivered:
		metrics.MessagesTotal.WithLabelValues(string(model.SenderAssistant)).Inc()
		s.publish(ctx, t.id, model.EventTypeMessageAppended, msg.ID, "")
	case OutcomeDiscarded:
		log.Info("discarding late assistant response")
		s.publish(ctx, t.id, model.EventTypeGenerationDiscarded, "", "conversation was cleared or deleted")
	case OutcomeFailed:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("assistant response failed", zap.Error(err))
		s.publish(ctx, t.id, model.EventTypeGenerationFailed, "", err.Error())
	}

	// A flight detached by clear or delete already reported typing stopped.
	s.mu.Lock()
	f.pending--
	last := f.pending == 0 && s.flights[t.id] == f
	if last {
		delete(s.flights, t.id)
	}
	s.mu.Unlock()

	metrics.GenerationsInFlight.Dec()
	close(done)
	if last {
		s.publish(ctx, t.id, model.EventTypeTypingStopped, "", "")
	}
	gen.finish(outcome, conv, msg, err)
}

func (s *MessageService) runGeneration(ctx context.Context, t ticket) (Outcome, *model.Conversation, *model.Message, error) {
	snapshot, err := s.store.Load(ctx, t.id)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return OutcomeDiscarded, nil, nil, ErrDiscarded
		}
		return OutcomeFailed, nil, nil, err
	}
	if !s.matches(t, snapshot) {
		return OutcomeDiscarded, nil, nil, ErrDiscarded
	}

	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout)
	text, err := s.generator.Generate(genCtx, llm.History(snapshot.Messages))
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("generation exceeded %s: %w", s.generationTimeout, err)
		}
		return OutcomeFailed, nil, nil, apperrors.Generation("failed to generate response", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	latest, err := s.store.Load(ctx, t.id)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return OutcomeDiscarded, nil, nil, ErrDiscarded
		}
		return OutcomeFailed, nil, nil, err
	}
	if !s.matches(t, latest) {
		return OutcomeDiscarded, nil, nil, ErrDiscarded
	}

	now := s.store.Now()
	msg := model.Message{
		ID:        s.store.NewID(),
		Sender:    model.SenderAssistant,
		Content:   text,
		Timestamp: now,
		Status:    model.StatusDelivered,
	}
	next := latest.Clone()
	next.Messages = append(next.Messages, msg)
	next.LastActivity = now

	if err := s.store.Save(ctx, next); err != nil {
		return OutcomeFailed, nil, nil, err
	}
	return OutcomeDelivered, next, &msg, nil
}

// matches reports whether conv is still the instance t was issued for.
func (s *MessageService) matches(t ticket, conv *model.Conversation) bool {
	s.mu.Lock()
	epoch := s.epochs[t.id]
	s.mu.Unlock()
	return epoch == t.epoch && conv.CreatedAt.Equal(t.createdAt)
}

// invalidate makes every outstanding ticket for id stale and records whether
// the id may be recreated by its next user message. The current flight is
// detached so the id stops typing at once and new requests do not queue
// behind doomed generations. It reports whether a flight was detached.
func (s *MessageService) invalidate(id string, cleared bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[id]++
	if cleared {
		s.cleared[id] = struct{}{}
	} else {
		delete(s.cleared, id)
	}
	_, typing := s.flights[id]
	delete(s.flights, id)
	return typing
}

// ReactToMessage sets or overwrites the reaction on an assistant message.
func (s *MessageService) ReactToMessage(ctx context.Context, conv *model.Conversation, messageID string, reaction model.Reaction) (*model.Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, apperrors.InvalidArg("conversation id is required")
	}
	if !reaction.Valid() {
		return nil, apperrors.InvalidArg(fmt.Sprintf("unknown reaction %q", reaction))
	}

	s.writeMu.Lock()
	latest, err := s.store.Load(ctx, conv.ID)
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	idx := latest.MessageIndex(messageID)
	if idx < 0 {
		s.writeMu.Unlock()
		return nil, apperrors.NotFound(fmt.Sprintf("message %s not found", messageID))
	}
	if latest.Messages[idx].Sender != model.SenderAssistant {
		s.writeMu.Unlock()
		return nil, apperrors.InvalidArg("reactions are only allowed on assistant messages")
	}

	next := latest.Clone()
	next.Messages[idx].Reaction = reaction
	next.LastActivity = s.store.Now()
	if err := s.store.Save(ctx, next); err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	s.writeMu.Unlock()

	s.publish(ctx, next.ID, model.EventTypeReactionSet, messageID, string(reaction))
	return next, nil
}

// SetBookmark marks or unmarks a conversation.
func (s *MessageService) SetBookmark(ctx context.Context, conv *model.Conversation, bookmarked bool) (*model.Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, apperrors.InvalidArg("conversation id is required")
	}

	s.writeMu.Lock()
	latest, err := s.store.Load(ctx, conv.ID)
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	next := latest.Clone()
	next.IsBookmarked = bookmarked
	if err := s.store.Save(ctx, next); err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	s.writeMu.Unlock()

	s.publish(ctx, next.ID, model.EventTypeBookmarkSet, "", fmt.Sprintf("%t", bookmarked))
	return next, nil
}

// Clear deletes the persisted record and invalidates any in-flight response.
// It returns an empty, untitled conversation with the same id; the next user
// message recreates it.
func (s *MessageService) Clear(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, apperrors.InvalidArg("conversation id is required")
	}

	s.writeMu.Lock()
	err := s.store.Delete(ctx, conv.ID)
	if err != nil && !apperrors.HasCode(err, apperrors.CodeNotFound) {
		s.writeMu.Unlock()
		return nil, err
	}
	typing := s.invalidate(conv.ID, true)
	s.writeMu.Unlock()

	s.publish(ctx, conv.ID, model.EventTypeCleared, "", "")
	if typing {
		s.publish(ctx, conv.ID, model.EventTypeTypingStopped, "", "")
	}
	return &model.Conversation{
		ID:       conv.ID,
		Messages: []model.Message{},
	}, nil
}

// Delete removes a conversation. A response still in flight for it is
// discarded.
func (s *MessageService) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	if err := s.store.Delete(ctx, id); err != nil {
		s.writeMu.Unlock()
		return err
	}
	typing := s.invalidate(id, false)
	s.writeMu.Unlock()

	s.publish(ctx, id, model.EventTypeDeleted, "", "")
	if typing {
		s.publish(ctx, id, model.EventTypeTypingStopped, "", "")
	}
	return nil
}

// DeleteMany deletes each id independently.
func (s *MessageService) DeleteMany(ctx context.Context, ids []string) []model.ItemOutcome {
	outcomes := make([]model.ItemOutcome, 0, len(ids))
	for _, id := range ids {
		outcomes = append(outcomes, model.NewItemOutcome(id, s.Delete(ctx, id)))
	}
	return outcomes
}

// CopyMessage writes a message's content to the clipboard.
func (s *MessageService) CopyMessage(ctx context.Context, conv *model.Conversation, messageID string, clipboard Clipboard) error {
	if conv == nil || conv.ID == "" {
		return apperrors.InvalidArg("conversation id is required")
	}
	latest, err := s.store.Load(ctx, conv.ID)
	if err != nil {
		return err
	}
	idx := latest.MessageIndex(messageID)
	if idx < 0 {
		return apperrors.NotFound(fmt.Sprintf("message %s not found", messageID))
	}
	if err := clipboard.WriteText(ctx, latest.Messages[idx].Content); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to write clipboard", err)
	}
	return nil
}

// Wait blocks until every queued generation has finished or ctx is done.
func (s *MessageService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MessageService) publish(ctx context.Context, conversationID string, typ model.EventType, messageID, reason string) {
	evt := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Type:           typ,
		MessageID:      messageID,
		Reason:         reason,
		CreatedAt:      s.store.Now(),
	}

	s.mu.Lock()
	observers := append([]events.Publisher(nil), s.observers...)
	s.mu.Unlock()

	for _, p := range append(observers, s.publisher) {
		if err := p.Publish(ctx, evt); err != nil {
			s.logger.Warn("failed to publish event",
				zap.String("conversation_id", conversationID),
				zap.String("type", string(typ)),
				zap.Error(err),
			)
		}
	}
}
