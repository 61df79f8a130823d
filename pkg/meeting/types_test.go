package meeting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInsightTypeValid(t *testing.T) {
	for _, typ := range AllInsightTypes {
		assert.True(t, typ.Valid(), string(typ))
	}
	assert.False(t, InsightType("").Valid())
	assert.False(t, InsightType("haiku").Valid())
	assert.False(t, InsightType("Decision").Valid())
}

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow} {
		assert.True(t, p.Valid(), string(p))
	}
	assert.False(t, Priority("urgent").Valid())
}

func TestAnswerResultAnswered(t *testing.T) {
	assert.True(t, AnswerResult{Source: SourceRAG}.Answered())
	assert.True(t, AnswerResult{Source: SourceGPTGenerated}.Answered())
	assert.False(t, AnswerResult{Source: SourceUnanswered}.Answered())
}

func TestRecordFromInsight(t *testing.T) {
	created := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	in := Insight{
		ID:         "ins-1",
		SessionID:  "sess-1",
		ChunkIndex: 7,
		Type:       InsightAction,
		Priority:   PriorityHigh,
		Content:    "send the revised deck",
		Confidence: 0.82,
		AssignedTo: "maya",
		DueDate:    "2026-08-30",
		CreatedAt:  created,
	}

	rec := RecordFromInsight(in, "proj-1", "org-1")

	assert.Zero(t, rec.RecordID)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "proj-1", rec.ProjectID)
	assert.Equal(t, "org-1", rec.OrganizationID)
	assert.Equal(t, "ins-1", rec.InsightID)
	assert.Equal(t, InsightAction, rec.Type)
	assert.Equal(t, PriorityHigh, rec.Priority)
	assert.Equal(t, "maya", rec.AssignedTo)
	assert.Equal(t, int64(7), rec.ChunkIndex)
	assert.Equal(t, created, rec.CreatedAt)
}
