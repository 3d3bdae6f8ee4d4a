package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	apperrors "github.com/capitalize-ai/conversation-engine/pkg/errors"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
)

// DefaultHeartbeatInterval is how often an idle stream sends a heartbeat.
const DefaultHeartbeatInterval = 30 * time.Second

const replayBatchSize = 50

// Subscriber streams live events of one conversation.
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string) (<-chan *model.ConversationEvent, error)
}

// Replayer reads persisted events after a sequence number.
type Replayer interface {
	Events(ctx context.Context, conversationID string, afterSequence uint64, limit int) ([]model.ConversationEvent, bool, error)
}

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	pipeline   *service.MessageService
	store      conversationLoader
	subscriber Subscriber
	replayer   Replayer
	logger     *logger.Logger
	heartbeat  time.Duration
}

// NewStreamHandler creates a new stream handler. replayer may be nil, in
// which case after_sequence is ignored.
func NewStreamHandler(
	pipeline *service.MessageService,
	store conversationLoader,
	subscriber Subscriber,
	replayer Replayer,
	log *logger.Logger,
) *StreamHandler {
	return &StreamHandler{
		pipeline:   pipeline,
		store:      store,
		subscriber: subscriber,
		replayer:   replayer,
		logger:     log,
		heartbeat:  DefaultHeartbeatInterval,
	}
}

// SetHeartbeatInterval overrides the heartbeat interval.
func (h *StreamHandler) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		h.heartbeat = d
	}
}

// ConnectedEvent is the first event on every stream.
type ConnectedEvent struct {
	ConversationID string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

// ReplayCompleteEvent represents the completion of event replay.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EventCount   int    `json:"event_count"`
}

// Stream handles GET /api/v1/conversations/:id/events
// Supports ?after_sequence=N to replay persisted events first.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.Load(ctx, conversationID); err != nil {
		if !apperrors.HasCode(err, apperrors.CodeNotFound) || !h.pipeline.WasCleared(conversationID) {
			writeAppError(w, h.logger, err)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before replaying so nothing published in between is lost.
	live, err := h.subscriber.Subscribe(ctx, conversationID)
	if err != nil {
		writeAppError(w, h.logger, apperrors.Wrap(apperrors.CodeInternal, "failed to subscribe", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.WithConversation(conversationID)

	sendSSEEvent(w, flusher, "connected", &ConnectedEvent{
		ConversationID: conversationID,
		Typing:         h.pipeline.IsTyping(conversationID),
	})

	if seqStr := r.URL.Query().Get("after_sequence"); seqStr != "" && h.replayer != nil {
		afterSequence, err := strconv.ParseUint(seqStr, 10, 64)
		if err != nil {
			sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
				Code:    string(apperrors.CodeInvalidArgument),
				Message: "after_sequence must be a non-negative integer",
			})
			return
		}
		h.replay(ctx, w, flusher, conversationID, afterSequence)
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return

		case evt, ok := <-live:
			if !ok {
				return
			}
			if err := sendSSEEvent(w, flusher, string(evt.Type), evt); err != nil {
				log.Warn("failed to write SSE event", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func (h *StreamHandler) replay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, conversationID string, afterSequence uint64) {
	lastSequence := afterSequence
	total := 0

	for {
		batch, hasMore, err := h.replayer.Events(ctx, conversationID, lastSequence, replayBatchSize)
		if err != nil {
			h.logger.Error("failed to replay events",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
				Code:    "replay_error",
				Message: "Failed to replay events",
			})
			break
		}

		for i := range batch {
			if ctx.Err() != nil {
				return
			}
			sendSSEEvent(w, flusher, string(batch[i].Type), &batch[i])
			lastSequence = batch[i].Sequence
			total++
		}

		if !hasMore || len(batch) == 0 {
			break
		}
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: lastSequence,
		EventCount:   total,
	})

	h.logger.Debug("event replay complete",
		zap.String("conversation_id", conversationID),
		zap.Int("events_replayed", total),
		zap.Uint64("last_sequence", lastSequence),
	)
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
