// Package extraction turns validated transcript chunks into typed insights
// using an LLM provider. Extraction is best-effort: malformed model output
// yields an empty result, never a pipeline failure.
package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/penf-live/pkg/ai"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
	"github.com/otherjamesbrown/penf-live/pkg/search"
)

// Config controls extraction behavior.
type Config struct {
	// MinConfidence drops insights the model itself is unsure about.
	MinConfidence float64
	// MaxTokens caps the completion size per chunk.
	MaxTokens int
	// Temperature for the extraction call. Low values keep output literal.
	Temperature float64
}

// DefaultConfig returns the production extraction settings.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.6,
		MaxTokens:     1024,
		Temperature:   0.2,
	}
}

// Engine extracts insights from transcript chunks.
type Engine struct {
	cfg      Config
	provider ai.Provider
	logger   logging.Logger
}

// NewEngine creates an extraction engine backed by the given provider.
func NewEngine(cfg Config, provider ai.Provider, logger logging.Logger) *Engine {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &Engine{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With(logging.F("component", "extraction")),
	}
}

// extractionResult is the wire shape the model is asked to produce.
type extractionResult struct {
	Insights []rawInsight `json:"insights"`
}

type rawInsight struct {
	Type       string  `json:"type"`
	Priority   string  `json:"priority"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	AssignedTo string  `json:"assigned_to"`
	DueDate    string  `json:"due_date"`
}

// Extract runs one extraction pass over chunk. rollingContext supplies the
// preceding chunks for local context and relatedHistory supplies background
// matches from past sessions. Only the enabled insight types are requested
// and returned.
//
// A provider failure is returned to the caller, who owns retry policy. A
// response that arrives but cannot be parsed is logged and yields an empty
// slice: one garbled completion must not stall the session.
func (e *Engine) Extract(
	ctx context.Context,
	chunk meeting.TranscriptChunk,
	rollingContext []meeting.TranscriptChunk,
	relatedHistory []search.Match,
	enabledTypes []meeting.InsightType,
) ([]meeting.Insight, error) {
	if len(enabledTypes) == 0 {
		enabledTypes = meeting.AllInsightTypes
	}

	req := ai.CompletionRequest{
		SystemPrompt: systemPrompt,
		Prompt:       buildExtractionPrompt(chunk, rollingContext, relatedHistory, enabledTypes),
		MaxTokens:    e.cfg.MaxTokens,
		Temperature:  e.cfg.Temperature,
		JSONMode:     true,
	}

	var result extractionResult
	if err := e.provider.CompleteStructured(ctx, req, &result); err != nil {
		var llmErr *ai.LLMError
		if errors.As(err, &llmErr) && llmErr.Code == ai.ErrParseFailure {
			e.logger.Warn("extraction response unparseable, skipping chunk",
				logging.F("session_id", chunk.SessionID),
				logging.F("chunk_index", chunk.Index))
			return nil, nil
		}
		return nil, err
	}

	enabled := make(map[meeting.InsightType]bool, len(enabledTypes))
	for _, t := range enabledTypes {
		enabled[t] = true
	}

	insights := make([]meeting.Insight, 0, len(result.Insights))
	for _, raw := range result.Insights {
		in, ok := e.materialize(raw, chunk, enabled)
		if !ok {
			continue
		}
		insights = append(insights, in)
	}

	e.logger.Debug("extraction complete",
		logging.F("session_id", chunk.SessionID),
		logging.F("chunk_index", chunk.Index),
		logging.F("insight_count", len(insights)))
	return insights, nil
}

// materialize validates one raw model insight and fills in the fields the
// model does not own. Unknown types, disabled types, empty content, and
// low-confidence results are discarded.
func (e *Engine) materialize(raw rawInsight, chunk meeting.TranscriptChunk, enabled map[meeting.InsightType]bool) (meeting.Insight, bool) {
	t := meeting.InsightType(raw.Type)
	if !t.Valid() || !enabled[t] {
		return meeting.Insight{}, false
	}
	if raw.Content == "" {
		return meeting.Insight{}, false
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < e.cfg.MinConfidence {
		return meeting.Insight{}, false
	}

	priority := meeting.Priority(raw.Priority)
	if !priority.Valid() {
		priority = meeting.PriorityMedium
	}

	in := meeting.Insight{
		ID:         uuid.NewString(),
		SessionID:  chunk.SessionID,
		ChunkIndex: chunk.Index,
		Type:       t,
		Priority:   priority,
		Content:    raw.Content,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
	}
	// Ownership fields apply to actions and questions only.
	if t == meeting.InsightAction || t == meeting.InsightQuestion {
		in.AssignedTo = raw.AssignedTo
		in.DueDate = raw.DueDate
	}
	return in, true
}
