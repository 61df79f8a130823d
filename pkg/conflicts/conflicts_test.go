package conflicts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/pkg/ai"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
	"github.com/otherjamesbrown/penf-live/pkg/search"
)

type stubSearcher struct {
	matches []search.Match
	err     error
	calls   int
}

func (s *stubSearcher) Search(context.Context, search.Query) ([]search.Match, error) {
	s.calls++
	return s.matches, s.err
}

type stubProvider struct {
	response string
	err      error
	calls    int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(_ context.Context, _ ai.CompletionRequest) (*ai.CompletionResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &ai.CompletionResponse{Content: p.response}, nil
}

func (p *stubProvider) CompleteStructured(ctx context.Context, req ai.CompletionRequest, target interface{}) error {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	return ai.ParseStructured(resp.Content, target)
}

func TestDetect_NoCandidatesSkipsModel(t *testing.T) {
	searcher := &stubSearcher{}
	provider := &stubProvider{}
	d := NewDetector(DefaultConfig(), searcher, provider, logging.NewNopLogger())

	alert, err := d.Detect(context.Background(), Scope{SessionID: "s1"}, "we will migrate to Postgres", nil)
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Equal(t, 0, provider.calls, "no similar decisions must mean zero model calls")
}

func TestDetect_GenuineContradictionAlerts(t *testing.T) {
	searcher := &stubSearcher{matches: []search.Match{
		{ID: "d1", Kind: search.KindDecision, Content: "We will stay on MySQL for the next two quarters.", Score: 0.88},
	}}
	provider := &stubProvider{response: `{"is_conflict": true,
		"conflicting_statement": "We will stay on MySQL for the next two quarters.",
		"severity": "medium", "confidence": 0.85,
		"reasoning": "The new statement reverses the database decision.",
		"suggestions": ["Confirm with the original decision owner"]}`}
	d := NewDetector(DefaultConfig(), searcher, provider, logging.NewNopLogger())

	alert, err := d.Detect(context.Background(), Scope{SessionID: "s1"}, "we will migrate to Postgres next sprint", nil)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "We will stay on MySQL for the next two quarters.", alert.ConflictingReference)
	assert.GreaterOrEqual(t, alert.Confidence, 0.7)
	assert.NotEmpty(t, alert.ResolutionSuggestions)
}

func TestDetect_CompatibleStatementsNeverFlagged(t *testing.T) {
	// High similarity but the model judges the statements compatible: no
	// alert, similarity alone is not contradiction.
	searcher := &stubSearcher{matches: []search.Match{
		{ID: "d1", Kind: search.KindDecision, Content: "We will use Postgres for the billing service.", Score: 0.93},
	}}
	provider := &stubProvider{response: `{"is_conflict": false,
		"conflicting_statement": "", "severity": "low", "confidence": 0.9,
		"reasoning": "Using Postgres for reporting too is a compatible extension.", "suggestions": []}`}
	d := NewDetector(DefaultConfig(), searcher, provider, logging.NewNopLogger())

	alert, err := d.Detect(context.Background(), Scope{SessionID: "s1"}, "we will also use Postgres for reporting", nil)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestDetect_LowConfidenceJudgmentDiscarded(t *testing.T) {
	searcher := &stubSearcher{matches: []search.Match{{ID: "d1", Content: "decision", Score: 0.8}}}
	provider := &stubProvider{response: `{"is_conflict": true,
		"conflicting_statement": "decision", "severity": "high", "confidence": 0.5,
		"reasoning": "unsure", "suggestions": []}`}
	d := NewDetector(DefaultConfig(), searcher, provider, logging.NewNopLogger())

	alert, err := d.Detect(context.Background(), Scope{SessionID: "s1"}, "statement", nil)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestDetect_RecentReversalEscalatesToHigh(t *testing.T) {
	recent := time.Now().Add(-48 * time.Hour).Format(time.RFC3339)
	searcher := &stubSearcher{matches: []search.Match{
		{ID: "d1", Content: "Ship weekly releases.", Score: 0.9, Timestamp: recent},
	}}
	provider := &stubProvider{response: `{"is_conflict": true,
		"conflicting_statement": "Ship weekly releases.",
		"severity": "medium", "confidence": 0.9,
		"reasoning": "Reverses the release cadence decision.", "suggestions": []}`}
	d := NewDetector(DefaultConfig(), searcher, provider, logging.NewNopLogger())

	alert, err := d.Detect(context.Background(), Scope{SessionID: "s1"}, "let's go back to monthly releases", nil)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, meeting.SeverityHigh, alert.Severity,
		"a confident reversal of a days-old decision must be high severity")
}

func TestDetect_OldDecisionKeepsModelSeverity(t *testing.T) {
	old := time.Now().Add(-90 * 24 * time.Hour).Format(time.RFC3339)
	searcher := &stubSearcher{matches: []search.Match{
		{ID: "d1", Content: "Ship weekly releases.", Score: 0.9, Timestamp: old},
	}}
	provider := &stubProvider{response: `{"is_conflict": true,
		"conflicting_statement": "Ship weekly releases.",
		"severity": "medium", "confidence": 0.9,
		"reasoning": "Reverses an old cadence decision.", "suggestions": []}`}
	d := NewDetector(DefaultConfig(), searcher, provider, logging.NewNopLogger())

	alert, err := d.Detect(context.Background(), Scope{SessionID: "s1"}, "let's go back to monthly releases", nil)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, meeting.SeverityMedium, alert.Severity)
}

func TestDetect_SearchErrorSurfaces(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("search down")}
	d := NewDetector(DefaultConfig(), searcher, &stubProvider{}, logging.NewNopLogger())

	_, err := d.Detect(context.Background(), Scope{SessionID: "s1"}, "statement", nil)
	assert.Error(t, err)
}
