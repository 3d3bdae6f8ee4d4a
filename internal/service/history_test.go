package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/export"
	"github.com/capitalize-ai/conversation-engine/internal/filter"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/selection"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	apperrors "github.com/capitalize-ai/conversation-engine/pkg/errors"
)

func seed(t *testing.T, f *fixture, texts ...string) []*model.Conversation {
	t.Helper()
	convs := make([]*model.Conversation, 0, len(texts))
	for _, text := range texts {
		conv, err := f.pipeline.AppendUserMessage(context.Background(), nil, text)
		require.NoError(t, err)
		convs = append(convs, conv)
	}
	return convs
}

func TestSetQuery_Debounced(t *testing.T) {
	f := newFixture(t, false)

	f.history.SetQuery("g")
	f.history.SetQuery("go")
	f.history.SetQuery("golang")

	pending, ok := f.history.PendingQuery()
	require.True(t, ok)
	require.Equal(t, "golang", pending)
	require.Empty(t, f.history.Query(), "nothing commits before the quiet interval")

	require.Eventually(t, func() bool {
		return f.history.Query() == "golang"
	}, time.Second, 5*time.Millisecond)

	_, ok = f.history.PendingQuery()
	require.False(t, ok)
}

func TestCommitQuery_DropsPending(t *testing.T) {
	f := newFixture(t, false)

	f.history.SetQuery("typed")
	f.history.CommitQuery(context.Background(), "submitted")
	require.Equal(t, "submitted", f.history.Query())

	time.Sleep(120 * time.Millisecond)
	require.Equal(t, "submitted", f.history.Query())
}

func TestVisible_AppliesQueryAndCriteria(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "Learning Go generics", "Planning a trip", "Go testing tips")

	visible, err := f.history.Visible(ctx)
	require.NoError(t, err)
	require.Len(t, visible, 3)

	f.history.CommitQuery(ctx, "go")
	visible, err = f.history.Visible(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{convs[0].ID, convs[2].ID}, filter.IDs(visible))

	f.history.SetCriteria(ctx, filter.Criteria{MessageCount: filter.MessageCountLong})
	visible, err = f.history.Visible(ctx)
	require.NoError(t, err)
	require.Empty(t, visible)
	require.Equal(t, filter.MessageCountLong, f.history.Criteria().MessageCount)
}

func TestToggle_OnlyVisible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "alpha", "beta")

	f.history.CommitQuery(ctx, "alpha")
	_, err := f.history.Toggle(ctx, convs[1].ID)
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	state, err := f.history.Toggle(ctx, convs[0].ID)
	require.NoError(t, err)
	require.Equal(t, []string{convs[0].ID}, state.Selected)
	require.True(t, state.SelectionMode)
}

func TestSelectAll_OnlyVisibleThenClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "alpha one", "beta", "alpha two")

	f.history.CommitQuery(ctx, "alpha")
	state, err := f.history.SelectAll(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{convs[0].ID, convs[2].ID}, state.Selected)
	require.True(t, state.SelectionMode)

	all, err := f.history.IsAllSelected(ctx)
	require.NoError(t, err)
	require.True(t, all)

	state = f.history.ClearSelection()
	require.Empty(t, state.Selected)
	require.False(t, state.SelectionMode)
}

func TestSelectionPrunedWhenFilterNarrows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "alpha", "beta")

	_, err := f.history.SelectAll(ctx)
	require.NoError(t, err)

	f.history.CommitQuery(ctx, "beta")

	state := f.history.Selection()
	require.Equal(t, []string{convs[1].ID}, state.Selected)
	require.True(t, state.SelectionMode)
}

func TestSelectionPrunedWhenCriteriaNarrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "plain", "with file")
	_, err := f.pipeline.AppendUserMessage(ctx, convs[1], "see attached", model.Attachment{Name: "notes.txt"})
	require.NoError(t, err)

	_, err = f.history.SelectAll(ctx)
	require.NoError(t, err)

	f.history.SetCriteria(ctx, filter.Criteria{HasAttachmentsOnly: true})
	require.Equal(t, []string{convs[1].ID}, f.history.Selection().Selected)
}

func TestSelectionPrunedWhenDebouncedQueryCommits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "alpha", "beta")

	_, err := f.history.SelectAll(ctx)
	require.NoError(t, err)

	f.history.SetQuery("beta")
	require.Eventually(t, func() bool {
		return len(f.history.Selection().Selected) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "beta", f.history.Query())
	require.Equal(t, []string{convs[1].ID}, f.history.Selection().Selected)
}

func TestDeleteSelected_SkipsHiddenConversations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "alpha", "beta")

	_, err := f.history.SelectAll(ctx)
	require.NoError(t, err)
	f.history.CommitQuery(ctx, "beta")

	outcomes, err := f.history.DeleteSelected(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{convs[1].ID}, model.SucceededIDs(outcomes))
	require.Len(t, outcomes, 1)

	_, err = f.store.Load(ctx, convs[0].ID)
	require.NoError(t, err, "hidden conversation must survive a bulk delete")
	require.Empty(t, f.history.Selection().Selected)
}

func TestIsAllSelected_AfterQueryChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "alpha one", "alpha two", "beta")

	_, err := f.history.Toggle(ctx, convs[0].ID)
	require.NoError(t, err)
	_, err = f.history.Toggle(ctx, convs[2].ID)
	require.NoError(t, err)

	f.history.CommitQuery(ctx, "alpha")
	all, err := f.history.IsAllSelected(ctx)
	require.NoError(t, err)
	require.False(t, all)
}

func TestEnterSelectionMode(t *testing.T) {
	f := newFixture(t, false)
	state := f.history.EnterSelectionMode()
	require.Equal(t, selection.State{Selected: []string{}, SelectionMode: true}, state)
}

func TestDelete_RemovesFromStoreAndSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "keep", "remove")

	_, err := f.history.SelectAll(ctx)
	require.NoError(t, err)

	require.NoError(t, f.history.Delete(ctx, convs[1].ID))

	_, err = f.store.Load(ctx, convs[1].ID)
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	require.Equal(t, []string{convs[0].ID}, f.history.Selection().Selected)
}

func TestPipelineDeleteReconcilesSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "one", "two")

	_, err := f.history.Toggle(ctx, convs[0].ID)
	require.NoError(t, err)

	require.NoError(t, f.pipeline.Delete(ctx, convs[0].ID))
	require.Empty(t, f.history.Selection().Selected)

	_, err = f.history.Toggle(ctx, convs[1].ID)
	require.NoError(t, err)
	_, err = f.pipeline.Clear(ctx, convs[1])
	require.NoError(t, err)
	require.Empty(t, f.history.Selection().Selected)
}

func TestDeleteSelected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	seed(t, f, "a", "b", "c")

	_, err := f.history.SelectAll(ctx)
	require.NoError(t, err)

	outcomes, err := f.history.DeleteSelected(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		require.True(t, o.OK)
	}

	state := f.history.Selection()
	require.Empty(t, state.Selected)
	require.False(t, state.SelectionMode)

	remaining, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestDeleteSelected_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "a", "b", "c")

	_, err := f.history.SelectAll(ctx)
	require.NoError(t, err)
	f.kv.failDelete[store.Key(convs[1].ID)] = true

	outcomes, err := f.history.DeleteSelected(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	require.ElementsMatch(t, []string{convs[0].ID, convs[2].ID}, model.SucceededIDs(outcomes))

	state := f.history.Selection()
	require.Equal(t, []string{convs[1].ID}, state.Selected)
	require.True(t, state.SelectionMode)

	_, err = f.store.Load(ctx, convs[1].ID)
	require.NoError(t, err)
}

func TestDeleteSelected_Empty(t *testing.T) {
	f := newFixture(t, false)
	outcomes, err := f.history.DeleteSelected(context.Background())
	require.NoError(t, err)
	require.Empty(t, outcomes)
}

func TestExportOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "export me")

	doc, err := f.history.ExportOne(ctx, convs[0].ID)
	require.NoError(t, err)
	require.Equal(t, "conversation-"+convs[0].ID+".json", doc.Filename)

	_, err = f.history.ExportOne(ctx, "missing")
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestExportSelected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "first", "second", "third")

	_, _, err := f.history.ExportSelected(ctx)
	require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

	_, err = f.history.Toggle(ctx, convs[0].ID)
	require.NoError(t, err)
	_, err = f.history.Toggle(ctx, convs[2].ID)
	require.NoError(t, err)

	doc, outcomes, err := f.history.ExportSelected(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.Contains(t, doc.Filename, "conversations-export-")

	var records []export.Record
	require.NoError(t, json.Unmarshal(doc.Body, &records))
	require.Len(t, records, 2)

	visible, err := f.history.Visible(ctx)
	require.NoError(t, err)
	var want []string
	for _, conv := range visible {
		if conv.ID == convs[0].ID || conv.ID == convs[2].ID {
			want = append(want, conv.ID)
		}
	}
	require.Equal(t, want, []string{records[0].ID, records[1].ID}, "export follows visible order")
}

func TestRecent(t *testing.T) {
	f := newFixture(t, false)
	seed(t, f, "one", "two", "three")

	recent, err := f.history.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestSubscribe_SelectionChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	convs := seed(t, f, "watch")

	var states []selection.State
	unsubscribe := f.history.Subscribe(func(s selection.State) { states = append(states, s) })
	defer unsubscribe()

	_, err := f.history.Toggle(ctx, convs[0].ID)
	require.NoError(t, err)
	require.NoError(t, f.history.Delete(ctx, convs[0].ID))

	require.Len(t, states, 2)
	require.Equal(t, []string{convs[0].ID}, states[0].Selected)
	require.Empty(t, states[1].Selected)
}
