package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

func TestNopStore(t *testing.T) {
	var s InsightStore = NopStore{}

	rec := meeting.LiveInsightRecord{SessionID: "s1", InsightID: "i1", Content: "ship it"}
	saved, err := s.SaveInsight(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec, saved)
	assert.Zero(t, saved.RecordID)

	listed, err := s.ListSessionInsights(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestNullableString(t *testing.T) {
	assert.Nil(t, nullableString(""))

	v := nullableString("proj-1")
	require.NotNil(t, v)
	assert.Equal(t, "proj-1", *v)
}
