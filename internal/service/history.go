package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/export"
	"github.com/capitalize-ai/conversation-engine/internal/filter"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/selection"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	apperrors "github.com/capitalize-ai/conversation-engine/pkg/errors"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// DefaultSearchDebounce is the quiet interval before a typed query commits.
const DefaultSearchDebounce = 300 * time.Millisecond

// HistoryOption configures a HistoryService.
type HistoryOption func(*HistoryService)

// WithSearchDebounce sets the query debounce interval.
func WithSearchDebounce(d time.Duration) HistoryOption {
	return func(h *HistoryService) { h.debounce = d }
}

// HistoryService owns the history view state: the search query, the filter
// criteria and the selection. The selection never holds an id that is not
// visible under the committed query and criteria.
type HistoryService struct {
	store     *store.ConversationStore
	pipeline  *MessageService
	selection *selection.Controller
	logger    *logger.Logger
	debounce  time.Duration

	mu         sync.Mutex
	query      string
	pending    string
	hasPending bool
	timer      *time.Timer
	timerSeq   uint64
	criteria   filter.Criteria
}

// NewHistoryService creates the history view over the shared store. Deletions
// made through the pipeline by any caller are reflected in the selection.
func NewHistoryService(st *store.ConversationStore, pipeline *MessageService, log *logger.Logger, opts ...HistoryOption) *HistoryService {
	h := &HistoryService{
		store:     st,
		pipeline:  pipeline,
		selection: selection.NewController(),
		logger:    log.Named("history"),
		debounce:  DefaultSearchDebounce,
		criteria:  filter.DefaultCriteria(),
	}
	for _, opt := range opts {
		opt(h)
	}
	pipeline.AddObserver(h)
	return h
}

// Publish reacts to pipeline events. Conversations that were deleted or
// cleared leave the selection.
func (h *HistoryService) Publish(_ context.Context, evt *model.ConversationEvent) error {
	switch evt.Type {
	case model.EventTypeDeleted, model.EventTypeCleared:
		h.selection.Remove(evt.ConversationID)
	}
	return nil
}

// SetQuery records a typed query and commits it once no further SetQuery
// call arrives within the debounce interval.
func (h *HistoryService) SetQuery(q string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pending = q
	h.hasPending = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timerSeq++
	seq := h.timerSeq
	h.timer = time.AfterFunc(h.debounce, func() {
		h.mu.Lock()
		if seq != h.timerSeq || !h.hasPending {
			h.mu.Unlock()
			return
		}
		h.query = h.pending
		h.hasPending = false
		h.timer = nil
		committed := h.query
		h.mu.Unlock()

		h.logger.Debug("search query committed", zap.String("query", committed))
		h.reconcile(context.Background())
	})
}

// CommitQuery sets the query immediately, dropping any pending one, and
// prunes the selection to the new visible set.
func (h *HistoryService) CommitQuery(ctx context.Context, q string) {
	h.mu.Lock()
	h.stopTimerLocked()
	h.query = q
	h.mu.Unlock()

	h.reconcile(ctx)
}

// Query returns the committed query.
func (h *HistoryService) Query() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.query
}

// PendingQuery returns the query waiting to be committed, if any.
func (h *HistoryService) PendingQuery() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending, h.hasPending
}

// SetCriteria replaces the filter criteria and prunes the selection to the
// new visible set.
func (h *HistoryService) SetCriteria(ctx context.Context, c filter.Criteria) {
	h.mu.Lock()
	h.criteria = c
	h.mu.Unlock()

	h.reconcile(ctx)
}

// Criteria returns the active filter criteria.
func (h *HistoryService) Criteria() filter.Criteria {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.criteria
}

// Visible returns the conversations passing the committed query and criteria
// and prunes the selection to them.
func (h *HistoryService) Visible(ctx context.Context) ([]*model.Conversation, error) {
	all, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	query, criteria := h.query, h.criteria
	h.mu.Unlock()

	visible := filter.Filter(all, query, criteria, h.store.Now())
	h.selection.Retain(filter.IDs(visible))
	return visible, nil
}

// Toggle selects or deselects a visible conversation.
func (h *HistoryService) Toggle(ctx context.Context, id string) (selection.State, error) {
	visible, err := h.Visible(ctx)
	if err != nil {
		return selection.State{}, err
	}
	for _, conv := range visible {
		if conv.ID == id {
			return h.selection.Toggle(id), nil
		}
	}
	return selection.State{}, apperrors.NotFound(fmt.Sprintf("conversation %s is not visible", id))
}

// SelectAll selects every visible conversation.
func (h *HistoryService) SelectAll(ctx context.Context) (selection.State, error) {
	visible, err := h.Visible(ctx)
	if err != nil {
		return selection.State{}, err
	}
	return h.selection.SelectAll(filter.IDs(visible)), nil
}

// ClearSelection empties the selection and leaves selection mode.
func (h *HistoryService) ClearSelection() selection.State {
	return h.selection.Clear()
}

// EnterSelectionMode opens selection mode without selecting anything.
func (h *HistoryService) EnterSelectionMode() selection.State {
	return h.selection.EnterMode()
}

// Selection returns the current selection.
func (h *HistoryService) Selection() selection.State {
	return h.selection.Snapshot()
}

// IsAllSelected reports whether every visible conversation is selected.
func (h *HistoryService) IsAllSelected(ctx context.Context) (bool, error) {
	visible, err := h.Visible(ctx)
	if err != nil {
		return false, err
	}
	return h.selection.IsAllSelected(filter.IDs(visible)), nil
}

// Subscribe registers fn for selection changes.
func (h *HistoryService) Subscribe(fn func(selection.State)) func() {
	return h.selection.Subscribe(fn)
}

// Delete deletes one conversation and drops it from the selection.
func (h *HistoryService) Delete(ctx context.Context, id string) error {
	if err := h.pipeline.Delete(ctx, id); err != nil {
		return err
	}
	h.selection.Remove(id)
	return nil
}

// DeleteSelected deletes every selected, visible conversation independently.
// Deleted ids leave the selection; when all succeed the selection is cleared.
func (h *HistoryService) DeleteSelected(ctx context.Context) ([]model.ItemOutcome, error) {
	ids, err := h.selectedVisible(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.ItemOutcome{}, nil
	}

	outcomes := h.pipeline.DeleteMany(ctx, ids)
	succeeded := model.SucceededIDs(outcomes)
	h.selection.Remove(succeeded...)
	if len(succeeded) == len(ids) {
		h.selection.Clear()
	} else {
		h.logger.Warn("bulk delete partially failed",
			zap.Int("requested", len(ids)),
			zap.Int("deleted", len(succeeded)),
		)
	}
	return outcomes, nil
}

// ExportOne exports a single conversation.
func (h *HistoryService) ExportOne(ctx context.Context, id string) (*export.Document, error) {
	conv, err := h.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := export.One(conv)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to export conversation", err)
	}
	return doc, nil
}

// ExportSelected exports the selected conversations in visible order. Each
// conversation is loaded independently; failed loads are reported and left
// out of the document.
func (h *HistoryService) ExportSelected(ctx context.Context) (*export.Document, []model.ItemOutcome, error) {
	ids, err := h.selectedVisible(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, apperrors.InvalidArg("no conversations selected")
	}

	convs := make([]*model.Conversation, 0, len(ids))
	outcomes := make([]model.ItemOutcome, 0, len(ids))
	for _, id := range ids {
		conv, err := h.store.Load(ctx, id)
		outcomes = append(outcomes, model.NewItemOutcome(id, err))
		if err == nil {
			convs = append(convs, conv)
		}
	}

	doc, err := export.Many(convs, h.store.Now())
	if err != nil {
		return nil, outcomes, apperrors.Wrap(apperrors.CodeInternal, "failed to export conversations", err)
	}
	return doc, outcomes, nil
}

// selectedVisible returns the selected ids in visible order.
func (h *HistoryService) selectedVisible(ctx context.Context) ([]string, error) {
	visible, err := h.Visible(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, conv := range visible {
		if h.selection.IsSelected(conv.ID) {
			ids = append(ids, conv.ID)
		}
	}
	return ids, nil
}

// reconcile prunes the selection to the visible set. A failed listing is
// logged and left to the next Visible call.
func (h *HistoryService) reconcile(ctx context.Context) {
	if _, err := h.Visible(ctx); err != nil {
		h.logger.Warn("failed to reconcile selection", zap.Error(err))
	}
}

// Recent returns the most recently active conversations.
func (h *HistoryService) Recent(ctx context.Context, n int) ([]*model.Conversation, error) {
	return h.store.Recent(ctx, n)
}

// Close stops a pending debounce timer.
func (h *HistoryService) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopTimerLocked()
}

func (h *HistoryService) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.timerSeq++
	h.pending = ""
	h.hasPending = false
}
