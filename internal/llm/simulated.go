package llm

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

const (
	// DefaultMinDelay is the shortest simulated thinking time.
	DefaultMinDelay = 1500 * time.Millisecond
	// DefaultMaxDelay is the longest simulated thinking time.
	DefaultMaxDelay = 2500 * time.Millisecond
)

// DefaultResponses are canned replies used by the simulated generator.
var DefaultResponses = []string{
	"Good question. Here is how I would approach it.",
	"Let me walk through that step by step.",
	"There are a few ways to look at this, so let's start with the simplest one.",
	"That comes up a lot. The short answer is that it depends on your goals.",
	"Happy to go into more detail on that.",
	"Let's break the problem into smaller pieces first.",
	"I see where the confusion comes from. Here is a clearer way to put it.",
	"A practical way to tackle this is to start small and iterate.",
}

// Simulated is a Generator that waits a random delay and returns a canned reply.
type Simulated struct {
	minDelay  time.Duration
	maxDelay  time.Duration
	responses []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// SimulatedOption configures a Simulated generator.
type SimulatedOption func(*Simulated)

// WithDelay sets the delay bounds.
func WithDelay(min, max time.Duration) SimulatedOption {
	return func(s *Simulated) {
		s.minDelay = min
		s.maxDelay = max
	}
}

// WithResponses replaces the canned replies.
func WithResponses(responses ...string) SimulatedOption {
	return func(s *Simulated) { s.responses = responses }
}

// WithSeed makes reply and delay selection deterministic.
func WithSeed(seed int64) SimulatedOption {
	return func(s *Simulated) { s.rnd = rand.New(rand.NewSource(seed)) }
}

// NewSimulated creates a simulated generator.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		minDelay:  DefaultMinDelay,
		maxDelay:  DefaultMaxDelay,
		responses: DefaultResponses,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxDelay < s.minDelay {
		s.maxDelay = s.minDelay
	}
	return s
}

// Name returns the generator name.
func (s *Simulated) Name() string {
	return "simulated"
}

// Generate sleeps for the simulated delay and returns a reply.
func (s *Simulated) Generate(ctx context.Context, history []ChatMessage) (string, error) {
	if len(s.responses) == 0 {
		return "", errors.New("simulated generator has no responses")
	}

	delay, reply := s.pick()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return reply, nil
	}
}

func (s *Simulated) pick() (time.Duration, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.minDelay
	if spread := s.maxDelay - s.minDelay; spread > 0 {
		delay += time.Duration(s.rnd.Int63n(int64(spread) + 1))
	}
	return delay, s.responses[s.rnd.Intn(len(s.responses))]
}
