// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// DefaultRecentLimit is the number of conversations returned by Recent.
const DefaultRecentLimit = 5

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	pipeline *service.MessageService
	history  *service.HistoryService
	logger   *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(pipeline *service.MessageService, history *service.HistoryService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		pipeline: pipeline,
		history:  history,
		logger:   log,
	}
}

// BookmarkRequest is the request to set a bookmark.
type BookmarkRequest struct {
	Bookmarked bool `json:"bookmarked"`
}

// Create handles POST /api/v1/conversations. The first message starts the
// conversation and queues the assistant's reply.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateSend(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, gen, err := h.pipeline.Send(r.Context(), nil, req.Content, req.Attachments...)
	if conv == nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err != nil {
		h.logger.WithConversation(conv.ID).Warn("failed to queue assistant response", zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, sendResponse(conv, gen))
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 20, 1, 100)
	offset := intParam(r, "offset", 0, 0, int(^uint(0)>>1))

	all, err := h.history.Recent(r.Context(), -1)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	total := len(all)
	start := min(offset, total)
	end := min(start+limit, total)

	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: model.Summaries(all[start:end]),
		Total:         total,
		HasMore:       end < total,
	})
}

// Recent handles GET /api/v1/conversations/recent
func (h *ConversationHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", DefaultRecentLimit, 1, 100)

	convs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.Summaries(convs))
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.pipeline.Get(r.Context(), conversationID)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.history.Delete(r.Context(), conversationID); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clear handles POST /api/v1/conversations/:id/clear
func (h *ConversationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.pipeline.Clear(r.Context(), &model.Conversation{ID: conversationID})
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.ConversationResponse{Conversation: conv})
}

// Bookmark handles PUT /api/v1/conversations/:id/bookmark
func (h *ConversationHandler) Bookmark(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req BookmarkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.pipeline.SetBookmark(r.Context(), &model.Conversation{ID: conversationID}, req.Bookmarked)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Export handles GET /api/v1/conversations/:id/export
func (h *ConversationHandler) Export(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.history.ExportOne(r.Context(), conversationID)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	writeDocument(w, doc)
}

func validateSend(req *model.SendMessageRequest) error {
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		return err
	}
	return middleware.ValidateAttachments(req.Attachments)
}

func sendResponse(conv *model.Conversation, gen *service.Generation) *model.SendMessageResponse {
	last := conv.Messages[len(conv.Messages)-1]
	return &model.SendMessageResponse{
		Conversation: conv,
		Message:      &last,
		Typing:       gen != nil,
	}
}
