package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	apperrors "github.com/capitalize-ai/conversation-engine/pkg/errors"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	pipeline *service.MessageService
	store    conversationLoader
	logger   *logger.Logger
}

// conversationLoader loads the latest persisted snapshot.
type conversationLoader interface {
	Load(ctx context.Context, id string) (*model.Conversation, error)
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(pipeline *service.MessageService, store conversationLoader, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		pipeline: pipeline,
		store:    store,
		logger:   log,
	}
}

// Send handles POST /api/v1/conversations/:id/messages. A conversation that
// was cleared is recreated under the same id by its next message.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateSend(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := h.store.Load(ctx, conversationID)
	switch {
	case err == nil:
	case apperrors.HasCode(err, apperrors.CodeNotFound) && h.pipeline.WasCleared(conversationID):
		current = &model.Conversation{ID: conversationID, Messages: []model.Message{}}
	default:
		writeAppError(w, h.logger, err)
		return
	}

	conv, gen, err := h.pipeline.Send(ctx, current, req.Content, req.Attachments...)
	if conv == nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err != nil {
		h.logger.WithConversation(conv.ID).Warn("failed to queue assistant response", zap.Error(err))
	}

	status := http.StatusAccepted
	if len(conv.Messages) == 1 {
		status = http.StatusCreated
	}
	writeJSON(w, status, sendResponse(conv, gen))
}

// React handles PUT /api/v1/conversations/:id/messages/:messageID/reaction
func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ReactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateReaction(req.Reaction); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.pipeline.ReactToMessage(r.Context(), &model.Conversation{ID: conversationID}, messageID, req.Reaction)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
