package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/conversation-engine/internal/filter"
	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/selection"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// ExportFailedHeader lists the ids left out of a bulk export.
const ExportFailedHeader = "X-Export-Failed"

var criteriaParams = []string{"date_range", "message_count", "duration", "has_attachments"}

// HistoryHandler handles the history view: search, filters, selection and
// bulk actions.
type HistoryHandler struct {
	history *service.HistoryService
	logger  *logger.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(history *service.HistoryService, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		logger:  log,
	}
}

// HistoryResponse is the visible history list and its view state.
type HistoryResponse struct {
	Query         string                      `json:"query"`
	PendingQuery  *string                     `json:"pending_query,omitempty"`
	Criteria      filter.Criteria             `json:"criteria"`
	Conversations []model.ConversationSummary `json:"conversations"`
	Selection     selection.State             `json:"selection"`
	AllSelected   bool                        `json:"all_selected"`
}

// QueryRequest is the request to update the search query.
type QueryRequest struct {
	Query string `json:"query"`
}

// BulkResponse reports per-item results of a bulk action.
type BulkResponse struct {
	Results   []model.ItemOutcome `json:"results"`
	Selection selection.State     `json:"selection"`
}

// List handles GET /api/v1/history. A q parameter commits the query
// immediately; filter parameters replace the active criteria.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	if params.Has("q") {
		h.history.CommitQuery(r.Context(), params.Get("q"))
	}
	if hasAny(params, criteriaParams) {
		c, err := filter.ParseCriteria(
			params.Get("date_range"),
			params.Get("message_count"),
			params.Get("duration"),
			params.Get("has_attachments"),
		)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.history.SetCriteria(r.Context(), c)
	}

	h.writeHistory(w, r)
}

// SetQuery handles PUT /api/v1/history/query. The query takes effect after
// the debounce interval.
func (h *HistoryHandler) SetQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.history.SetQuery(req.Query)
	writeJSON(w, http.StatusAccepted, map[string]string{"pending_query": req.Query})
}

// Selection handles GET /api/v1/history/selection
func (h *HistoryHandler) Selection(w http.ResponseWriter, r *http.Request) {
	if _, err := h.history.Visible(r.Context()); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.history.Selection())
}

// Toggle handles POST /api/v1/history/selection/:id
func (h *HistoryHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.history.Toggle(r.Context(), conversationID)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// SelectAll handles POST /api/v1/history/selection/all
func (h *HistoryHandler) SelectAll(w http.ResponseWriter, r *http.Request) {
	state, err := h.history.SelectAll(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// EnterMode handles POST /api/v1/history/selection/mode
func (h *HistoryHandler) EnterMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.history.EnterSelectionMode())
}

// ClearSelection handles DELETE /api/v1/history/selection
func (h *HistoryHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.history.ClearSelection())
}

// DeleteSelected handles POST /api/v1/history/selection/delete
func (h *HistoryHandler) DeleteSelected(w http.ResponseWriter, r *http.Request) {
	results, err := h.history.DeleteSelected(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if len(model.SucceededIDs(results)) < len(results) {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, &BulkResponse{
		Results:   results,
		Selection: h.history.Selection(),
	})
}

// ExportSelected handles GET /api/v1/history/selection/export
func (h *HistoryHandler) ExportSelected(w http.ResponseWriter, r *http.Request) {
	doc, results, err := h.history.ExportSelected(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	var failed []string
	for _, res := range results {
		if !res.OK {
			failed = append(failed, res.ID)
		}
	}
	if len(failed) > 0 {
		w.Header().Set(ExportFailedHeader, strings.Join(failed, ","))
	}
	writeDocument(w, doc)
}

func (h *HistoryHandler) writeHistory(w http.ResponseWriter, r *http.Request) {
	visible, err := h.history.Visible(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	resp := &HistoryResponse{
		Query:         h.history.Query(),
		Criteria:      h.history.Criteria(),
		Conversations: model.Summaries(visible),
		Selection:     h.history.Selection(),
	}
	resp.AllSelected = resp.Selection.Covers(filter.IDs(visible))
	if pending, ok := h.history.PendingQuery(); ok {
		resp.PendingQuery = &pending
	}
	writeJSON(w, http.StatusOK, resp)
}

func hasAny(params map[string][]string, keys []string) bool {
	for _, k := range keys {
		if _, ok := params[k]; ok {
			return true
		}
	}
	return false
}
