package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/kv"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	apperrors "github.com/capitalize-ai/conversation-engine/pkg/errors"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// flakyKV wraps a Memory and fails writes or deletes for selected keys.
type flakyKV struct {
	*kv.Memory
	failSet    map[string]bool
	failDelete map[string]bool
}

func newFlakyKV() *flakyKV {
	return &flakyKV{Memory: kv.NewMemory(), failSet: map[string]bool{}, failDelete: map[string]bool{}}
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet[key] {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *flakyKV) Delete(ctx context.Context, key string) error {
	if f.failDelete[key] {
		return errors.New("io error")
	}
	return f.Memory.Delete(ctx, key)
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(backend kv.KV) *store.ConversationStore {
	n := 0
	return store.NewConversationStore(backend, logger.NewNop(),
		store.WithClock(func() time.Time { return epoch }),
		store.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("conv-%d", n)
		}),
	)
}

func TestCreate(t *testing.T) {
	s := newStore(kv.NewMemory())

	conv := s.Create("What is the best way to learn Go?")
	require.Equal(t, "conv-1", conv.ID)
	require.Equal(t, "What is the best way to learn Go?", conv.Title)
	require.Empty(t, conv.Messages)
	require.NotNil(t, conv.Messages)
	require.Equal(t, epoch, conv.CreatedAt)
	require.Equal(t, conv.CreatedAt, conv.LastActivity)

	_, err := s.Load(context.Background(), conv.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "create must not persist")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewConversationStore(kv.NewMemory(), logger.NewNop())

	conv := s.Create("hello")
	conv.IsBookmarked = true
	conv.Messages = append(conv.Messages,
		model.Message{
			ID:          "m1",
			Sender:      model.SenderUser,
			Content:     "hello",
			Timestamp:   conv.CreatedAt,
			Status:      model.StatusSent,
			Attachments: []model.Attachment{{Name: "notes.txt", ContentType: "text/plain", SizeBytes: 12}},
		},
		model.Message{
			ID:        "m2",
			Sender:    model.SenderAssistant,
			Content:   "hi there",
			Timestamp: s.Now(),
			Status:    model.StatusDelivered,
			Reaction:  model.ReactionLike,
		},
	)
	conv.LastActivity = conv.Messages[1].Timestamp

	require.NoError(t, s.Save(ctx, conv))
	require.NoError(t, s.Save(ctx, conv), "save is idempotent")

	loaded, err := s.Load(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, conv, loaded)
}

func TestLoad_NotFound(t *testing.T) {
	s := newStore(kv.NewMemory())
	conv, err := s.Load(context.Background(), "nope")
	require.Nil(t, conv)
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestSave_FailureKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyKV()
	s := newStore(backend)

	conv := s.Create("first")
	require.NoError(t, s.Save(ctx, conv))

	backend.failSet[store.Key(conv.ID)] = true
	changed := conv.Clone()
	changed.Title = "changed"
	err := s.Save(ctx, changed)
	require.Equal(t, apperrors.CodePersistenceFailure, apperrors.CodeOf(err))

	loaded, err := s.Load(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, "first", loaded.Title)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(kv.NewMemory())

	conv := s.Create("bye")
	require.NoError(t, s.Save(ctx, conv))
	require.NoError(t, s.Delete(ctx, conv.ID))

	_, err := s.Load(ctx, conv.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	require.True(t, apperrors.HasCode(s.Delete(ctx, conv.ID), apperrors.CodeNotFound))
}

func TestDeleteMany_IndependentOutcomes(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyKV()
	s := newStore(backend)

	var ids []string
	for i := 0; i < 3; i++ {
		conv := s.Create("msg")
		require.NoError(t, s.Save(ctx, conv))
		ids = append(ids, conv.ID)
	}
	backend.failDelete[store.Key(ids[1])] = true

	outcomes := s.DeleteMany(ctx, append(ids, "missing"))
	require.Len(t, outcomes, 4)
	require.True(t, outcomes[0].OK)
	require.False(t, outcomes[1].OK)
	require.Equal(t, apperrors.CodePersistenceFailure, apperrors.CodeOf(outcomes[1].Err))
	require.True(t, outcomes[2].OK)
	require.False(t, outcomes[3].OK)
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(outcomes[3].Err))
	require.Equal(t, []string{ids[0], ids[2]}, model.SucceededIDs(outcomes))

	remaining, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, ids[1], remaining[0].ID)
}

func TestList_OrderAndCorruptRecords(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s := newStore(backend)

	older := s.Create("older")
	newer := s.Create("newer")
	newer.LastActivity = epoch.Add(time.Hour)
	tie := s.Create("tie")
	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))
	require.NoError(t, s.Save(ctx, tie))

	require.NoError(t, backend.Set(ctx, store.Key("broken"), []byte("{not json")))
	require.NoError(t, backend.Set(ctx, "unrelated", []byte("{}")))

	convs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	require.Equal(t, []string{newer.ID, older.ID, tie.ID}, []string{convs[0].ID, convs[1].ID, convs[2].ID})

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, newer.ID, recent[0].ID)
}
