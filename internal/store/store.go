// Package store persists conversation records into a key-value backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/kv"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	apperrors "github.com/capitalize-ai/conversation-engine/pkg/errors"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
	"github.com/capitalize-ai/conversation-engine/pkg/tracing"
)

// KeyPrefix prefixes every persisted conversation key.
const KeyPrefix = "conversation_"

// Key returns the record key for a conversation id.
func Key(id string) string {
	return KeyPrefix + id
}

// Clock returns the current time.
type Clock func() time.Time

// IDGenerator returns a fresh opaque id.
type IDGenerator func() string

// SystemClock returns the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// NewID returns a UUIDv7 string.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a ConversationStore.
type Option func(*ConversationStore)

// WithClock overrides the clock used for timestamps.
func WithClock(clock Clock) Option {
	return func(s *ConversationStore) { s.now = clock }
}

// WithIDGenerator overrides conversation id allocation.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *ConversationStore) { s.newID = gen }
}

// ConversationStore is the canonical store shared by the chat pipeline and
// the history view.
type ConversationStore struct {
	kv     kv.KV
	logger *logger.Logger
	now    Clock
	newID  IDGenerator
}

// NewConversationStore creates a store over the given backend.
func NewConversationStore(backend kv.KV, log *logger.Logger, opts ...Option) *ConversationStore {
	s := &ConversationStore{
		kv:     backend,
		logger: log.Named("store"),
		now:    SystemClock,
		newID:  NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time.
func (s *ConversationStore) Now() time.Time {
	return s.now()
}

// NewID allocates an id from the store's generator.
func (s *ConversationStore) NewID() string {
	return s.newID()
}

// Create builds a new, unsaved conversation titled from its first message.
func (s *ConversationStore) Create(firstMessageContent string) *model.Conversation {
	now := s.now()
	return &model.Conversation{
		ID:           s.newID(),
		Title:        model.DeriveTitle(firstMessageContent),
		Messages:     []model.Message{},
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Load returns the persisted conversation with the given id.
func (s *ConversationStore) Load(ctx context.Context, id string) (*model.Conversation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "store.Load")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	data, err := s.kv.Get(ctx, Key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf("conversation %s not found", id))
	}
	if err != nil {
		return nil, s.fail(span, "load", apperrors.Persistence("failed to read conversation", err))
	}

	conv, err := decode(data)
	if err != nil {
		return nil, s.fail(span, "load", apperrors.Persistence("failed to decode conversation", err))
	}
	return conv, nil
}

// Save overwrites the full snapshot of conv.
func (s *ConversationStore) Save(ctx context.Context, conv *model.Conversation) error {
	ctx, span := tracing.Tracer().Start(ctx, "store.Save")
	defer span.End()

	if conv == nil || conv.ID == "" {
		return apperrors.InvalidArg("conversation id is required")
	}
	span.SetAttributes(
		attribute.String("conversation.id", conv.ID),
		attribute.Int("conversation.messages", len(conv.Messages)),
	)

	snapshot := conv.Clone()
	if snapshot.Messages == nil {
		snapshot.Messages = []model.Message{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return s.fail(span, "save", apperrors.Persistence("failed to encode conversation", err))
	}
	if err := s.kv.Set(ctx, Key(conv.ID), data); err != nil {
		return s.fail(span, "save", apperrors.Persistence("failed to write conversation", err))
	}
	return nil
}

// Delete removes a persisted conversation.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.Tracer().Start(ctx, "store.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	err := s.kv.Delete(ctx, Key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return apperrors.NotFound(fmt.Sprintf("conversation %s not found", id))
	}
	if err != nil {
		return s.fail(span, "delete", apperrors.Persistence("failed to delete conversation", err))
	}
	return nil
}

// DeleteMany deletes each id independently and reports one outcome per id.
func (s *ConversationStore) DeleteMany(ctx context.Context, ids []string) []model.ItemOutcome {
	outcomes := make([]model.ItemOutcome, 0, len(ids))
	for _, id := range ids {
		outcomes = append(outcomes, model.NewItemOutcome(id, s.Delete(ctx, id)))
	}
	return outcomes
}

// List returns every conversation, most recently active first.
func (s *ConversationStore) List(ctx context.Context) ([]*model.Conversation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "store.List")
	defer span.End()

	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, s.fail(span, "list", apperrors.Persistence("failed to list conversations", err))
	}

	convs := make([]*model.Conversation, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, KeyPrefix) {
			continue
		}
		data, err := s.kv.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			// Deleted between Keys and Get.
			continue
		}
		if err != nil {
			return nil, s.fail(span, "list", apperrors.Persistence("failed to read conversation", err))
		}
		conv, err := decode(data)
		if err != nil {
			s.logger.Warn("skipping undecodable conversation record",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		convs = append(convs, conv)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		if !convs[i].LastActivity.Equal(convs[j].LastActivity) {
			return convs[i].LastActivity.After(convs[j].LastActivity)
		}
		return convs[i].ID < convs[j].ID
	})
	span.SetAttributes(attribute.Int("conversations", len(convs)))
	return convs, nil
}

// Recent returns at most n of the most recently active conversations.
func (s *ConversationStore) Recent(ctx context.Context, n int) ([]*model.Conversation, error) {
	convs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(convs) > n {
		convs = convs[:n]
	}
	return convs, nil
}

func (s *ConversationStore) fail(span trace.Span, op string, err error) error {
	metrics.PersistenceFailures.WithLabelValues(op).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error("store operation failed", zap.String("operation", op), zap.Error(err))
	return err
}

func decode(data []byte) (*model.Conversation, error) {
	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	if conv.ID == "" {
		return nil, errors.New("record has no id")
	}
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}
	return &conv, nil
}
