package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/kv"
	"github.com/capitalize-ai/conversation-engine/internal/llm"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// fakeGenerator numbers its replies in call order. When gate is set every
// call blocks until a value is sent on it.
type fakeGenerator struct {
	gate    chan struct{}
	started chan int
	err     error

	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	histories [][]llm.ChatMessage
}

func newFakeGenerator(gated bool) *fakeGenerator {
	g := &fakeGenerator{started: make(chan int, 16)}
	if gated {
		g.gate = make(chan struct{})
	}
	return g
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(ctx context.Context, history []llm.ChatMessage) (string, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.active++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
	g.histories = append(g.histories, history)
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	g.started <- n
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("reply-%d", n), nil
}

func (g *fakeGenerator) release() {
	g.gate <- struct{}{}
}

func (g *fakeGenerator) waitStarted(t *testing.T) int {
	t.Helper()
	select {
	case n := <-g.started:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not start")
		return 0
	}
}

// flakyKV fails writes while failSet is true.
type flakyKV struct {
	*kv.Memory
	mu         sync.Mutex
	failSet    bool
	failDelete map[string]bool
}

func newFlakyKV() *flakyKV {
	return &flakyKV{Memory: kv.NewMemory(), failDelete: map[string]bool{}}
}

func (f *flakyKV) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet = v
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	failing := f.failSet
	f.mu.Unlock()
	if failing {
		return errors.New("quota exceeded")
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *flakyKV) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	failing := f.failDelete[key]
	f.mu.Unlock()
	if failing {
		return errors.New("locked")
	}
	return f.Memory.Delete(ctx, key)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.ConversationEvent
}

func (r *recordingPublisher) Publish(_ context.Context, evt *model.ConversationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingPublisher) types(conversationID string) []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EventType
	for _, evt := range r.events {
		if evt.ConversationID == conversationID {
			out = append(out, evt.Type)
		}
	}
	return out
}

type fixture struct {
	kv       *flakyKV
	store    *store.ConversationStore
	gen      *fakeGenerator
	events   *recordingPublisher
	pipeline *service.MessageService
	history  *service.HistoryService
}

func newFixture(t *testing.T, gated bool, opts ...service.MessageOption) *fixture {
	t.Helper()
	f := &fixture{
		kv:     newFlakyKV(),
		gen:    newFakeGenerator(gated),
		events: &recordingPublisher{},
	}
	f.store = store.NewConversationStore(f.kv, logger.NewNop())
	opts = append([]service.MessageOption{service.WithPublisher(f.events)}, opts...)
	f.pipeline = service.NewMessageService(f.store, f.gen, logger.NewNop(), opts...)
	f.history = service.NewHistoryService(f.store, f.pipeline, logger.NewNop(),
		service.WithSearchDebounce(50*time.Millisecond))
	t.Cleanup(f.history.Close)
	return f
}

func wait(t *testing.T, gen *service.Generation) (*model.Conversation, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conv, err := gen.Wait(ctx)
	require.NoError(t, ctx.Err(), "generation did not finish")
	return conv, err
}
