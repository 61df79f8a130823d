package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/pkg/ai"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
	"github.com/otherjamesbrown/penf-live/pkg/search"
)

// mockProvider replays a canned JSON body through the real parse path.
type mockProvider struct {
	response   string
	err        error
	lastPrompt string
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(_ context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	m.lastPrompt = req.Prompt
	if m.err != nil {
		return nil, m.err
	}
	return &ai.CompletionResponse{Content: m.response}, nil
}

func (m *mockProvider) CompleteStructured(ctx context.Context, req ai.CompletionRequest, target interface{}) error {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return err
	}
	return ai.ParseStructured(resp.Content, target)
}

func testChunk(text string) meeting.TranscriptChunk {
	return meeting.TranscriptChunk{
		ID:        "c1",
		SessionID: "s1",
		Index:     4,
		Text:      text,
	}
}

func TestExtract_TypedInsights(t *testing.T) {
	provider := &mockProvider{response: `{"insights": [
		{"type": "decision", "priority": "high", "content": "Team will use Postgres.", "confidence": 0.92},
		{"type": "action", "priority": "medium", "content": "Sam to draft the migration plan.", "confidence": 0.85, "assigned_to": "Sam", "due_date": "Friday"}
	]}`}
	e := NewEngine(DefaultConfig(), provider, logging.NewNopLogger())

	insights, err := e.Extract(context.Background(), testChunk("we'll go with postgres, sam will draft the plan by friday"), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, insights, 2)

	assert.Equal(t, meeting.InsightDecision, insights[0].Type)
	assert.Equal(t, meeting.PriorityHigh, insights[0].Priority)
	assert.Equal(t, "s1", insights[0].SessionID)
	assert.Equal(t, int64(4), insights[0].ChunkIndex)
	assert.NotEmpty(t, insights[0].ID)

	assert.Equal(t, meeting.InsightAction, insights[1].Type)
	assert.Equal(t, "Sam", insights[1].AssignedTo)
	assert.Equal(t, "Friday", insights[1].DueDate)
}

func TestExtract_QuestionCarriesOwnership(t *testing.T) {
	provider := &mockProvider{response: `{"insights": [
		{"type": "question", "priority": "medium", "content": "Who signs off on the budget?", "confidence": 0.8, "assigned_to": "Priya", "due_date": "Thursday"},
		{"type": "key_point", "priority": "low", "content": "Budget is under review.", "confidence": 0.8, "assigned_to": "Priya"}
	]}`}
	e := NewEngine(DefaultConfig(), provider, logging.NewNopLogger())

	insights, err := e.Extract(context.Background(), testChunk("who signs off on the budget? priya should know by thursday"), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, insights, 2)

	assert.Equal(t, meeting.InsightQuestion, insights[0].Type)
	assert.Equal(t, "Priya", insights[0].AssignedTo)
	assert.Equal(t, "Thursday", insights[0].DueDate)

	assert.Equal(t, meeting.InsightKeyPoint, insights[1].Type)
	assert.Empty(t, insights[1].AssignedTo, "ownership fields apply to actions and questions only")
}

func TestExtract_FiltersLowConfidence(t *testing.T) {
	provider := &mockProvider{response: `{"insights": [
		{"type": "risk", "priority": "high", "content": "Maybe a risk.", "confidence": 0.4},
		{"type": "risk", "priority": "high", "content": "Definite risk.", "confidence": 0.8}
	]}`}
	e := NewEngine(DefaultConfig(), provider, logging.NewNopLogger())

	insights, err := e.Extract(context.Background(), testChunk("text"), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "Definite risk.", insights[0].Content)
}

func TestExtract_FiltersDisabledAndUnknownTypes(t *testing.T) {
	provider := &mockProvider{response: `{"insights": [
		{"type": "decision", "priority": "high", "content": "A decision.", "confidence": 0.9},
		{"type": "risk", "priority": "high", "content": "A risk.", "confidence": 0.9},
		{"type": "gossip", "priority": "high", "content": "Not a real type.", "confidence": 0.9}
	]}`}
	e := NewEngine(DefaultConfig(), provider, logging.NewNopLogger())

	insights, err := e.Extract(context.Background(), testChunk("text"), nil, nil,
		[]meeting.InsightType{meeting.InsightDecision})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, meeting.InsightDecision, insights[0].Type)
}

func TestExtract_MalformedResponseYieldsEmpty(t *testing.T) {
	provider := &mockProvider{response: "sorry, I cannot help with that"}
	e := NewEngine(DefaultConfig(), provider, logging.NewNopLogger())

	insights, err := e.Extract(context.Background(), testChunk("text"), nil, nil, nil)
	require.NoError(t, err, "garbled output must not fail the chunk")
	assert.Empty(t, insights)
}

func TestExtract_ProviderErrorSurfaces(t *testing.T) {
	provider := &mockProvider{err: &ai.LLMError{Code: ai.ErrUnavailable, Message: "down"}}
	e := NewEngine(DefaultConfig(), provider, logging.NewNopLogger())

	_, err := e.Extract(context.Background(), testChunk("text"), nil, nil, nil)
	require.Error(t, err, "caller owns the retry policy, the error must surface")
}

func TestExtract_InvalidPriorityDefaultsToMedium(t *testing.T) {
	provider := &mockProvider{response: `{"insights": [
		{"type": "key_point", "priority": "urgent!!", "content": "Status update.", "confidence": 0.9}
	]}`}
	e := NewEngine(DefaultConfig(), provider, logging.NewNopLogger())

	insights, err := e.Extract(context.Background(), testChunk("text"), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, meeting.PriorityMedium, insights[0].Priority)
}

func TestBuildExtractionPrompt_IncludesOnlyEnabledCategories(t *testing.T) {
	prompt := buildExtractionPrompt(testChunk("hello"), nil, nil,
		[]meeting.InsightType{meeting.InsightQuestion})

	assert.Contains(t, prompt, `"question"`)
	assert.NotContains(t, prompt, `"decision": a commitment`)
}

func TestBuildExtractionPrompt_MarksHistoryAsBackground(t *testing.T) {
	history := []search.Match{{ID: "m1", Content: "last week we chose GraphQL"}}
	ctxChunks := []meeting.TranscriptChunk{{Text: "earlier statement", Speaker: "Alex"}}

	prompt := buildExtractionPrompt(testChunk("current words"), ctxChunks, history, meeting.AllInsightTypes)

	assert.Contains(t, prompt, "RELATED PAST DISCUSSIONS")
	assert.Contains(t, prompt, "last week we chose GraphQL")
	assert.Contains(t, prompt, "Alex: earlier statement")
	assert.Contains(t, prompt, "CURRENT STATEMENT")
	assert.Contains(t, prompt, "current words")
}
