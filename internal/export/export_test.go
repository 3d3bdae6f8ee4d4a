package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

func conversation(id string) *model.Conversation {
	created := time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC)
	return &model.Conversation{
		ID:        id,
		Title:     "Title " + id,
		CreatedAt: created,
		Messages: []model.Message{
			{ID: id + "-1", Sender: model.SenderUser, Content: "hi", Timestamp: created, Status: model.StatusSent,
				Attachments: []model.Attachment{{Name: "a.png"}}},
			{ID: id + "-2", Sender: model.SenderAssistant, Content: "hello", Timestamp: created.Add(7 * time.Minute), Status: model.StatusDelivered},
		},
		LastActivity: created.Add(7 * time.Minute),
	}
}

func TestOne(t *testing.T) {
	doc, err := One(conversation("abc"))
	require.NoError(t, err)
	require.Equal(t, "conversation-abc.json", doc.Filename)
	require.Equal(t, ContentType, doc.ContentType)

	var rec Record
	require.NoError(t, json.Unmarshal(doc.Body, &rec))
	require.Equal(t, "abc", rec.ID)
	require.Equal(t, 2, rec.MessageCount)
	require.Equal(t, 7, rec.DurationMinutes)
	require.True(t, rec.HasAttachments)
	require.Len(t, rec.Messages, 2)
}

func TestMany_ShapeMatchesOne(t *testing.T) {
	a, b := conversation("a"), conversation("b")
	doc, err := Many([]*model.Conversation{b, a}, time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "conversations-export-2024-12-31.json", doc.Filename)

	var records []json.RawMessage
	require.NoError(t, json.Unmarshal(doc.Body, &records))
	require.Len(t, records, 2)

	single, err := One(b)
	require.NoError(t, err)
	require.JSONEq(t, string(single.Body), string(records[0]))

	var first Record
	require.NoError(t, json.Unmarshal(records[1], &first))
	require.Equal(t, "a", first.ID)
}

func TestMany_Deterministic(t *testing.T) {
	convs := []*model.Conversation{conversation("x"), conversation("y")}
	d1, err := Many(convs, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	d2, err := Many(convs, time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, d1.Body, d2.Body)
	require.NotEqual(t, d1.Filename, d2.Filename)
}

func TestMany_Empty(t *testing.T) {
	doc, err := Many(nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, "[]", string(doc.Body))
}

func TestOne_Nil(t *testing.T) {
	_, err := One(nil)
	require.Error(t, err)
}
