// Package repetition spots topics a meeting keeps circling back to without
// progress. Embedding similarity finds recurring statements; the model
// separates genuine stalling from a discussion that is actually building
// toward a conclusion.
package repetition

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/ai"
	"github.com/otherjamesbrown/penf-live/pkg/embedding"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// Config controls repetition detection.
type Config struct {
	// SimilarityThreshold marks two statements as the same topic.
	SimilarityThreshold float64
	// MinConfidence discards model judgments below this certainty. Loosened
	// from an earlier stricter value because genuine repetitions were being
	// missed; tune per deployment, not in code.
	MinConfidence float64
	// MinOccurrences is the total number of similar statements (including
	// the current one) before the model is consulted.
	MinOccurrences int
	// Window bounds how far back similar statements count.
	Window time.Duration
	// MaxEntries bounds per-session history regardless of age.
	MaxEntries  int
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns the production repetition settings.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.75,
		MinConfidence:       0.65,
		MinOccurrences:      3,
		Window:              10 * time.Minute,
		MaxEntries:          100,
		MaxTokens:           640,
		Temperature:         0.2,
	}
}

// entry is one remembered statement.
type entry struct {
	text      string
	vector    []float64
	index     int64
	timestamp time.Time
}

// Detector tracks per-session statement history and raises repetition
// alerts.
type Detector struct {
	cfg      Config
	embedder embedding.Client
	provider ai.Provider
	logger   logging.Logger

	mu       sync.Mutex
	sessions map[string][]entry
}

// NewDetector creates a repetition detector.
func NewDetector(cfg Config, embedder embedding.Client, provider ai.Provider, logger logging.Logger) *Detector {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	if cfg.MinOccurrences <= 0 {
		cfg.MinOccurrences = DefaultConfig().MinOccurrences
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	return &Detector{
		cfg:      cfg,
		embedder: embedder,
		provider: provider,
		logger:   logger.With(logging.F("component", "repetition")),
		sessions: make(map[string][]entry),
	}
}

// repetitionJudgment is the wire shape of the model's verdict.
type repetitionJudgment struct {
	IsRepetition bool    `json:"is_repetition"`
	Topic        string  `json:"topic"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// Check records the chunk and reports whether it completes a repetition
// pattern. The current statement is always appended to history, alert or
// not, so a fourth and fifth occurrence keep matching against the latest
// ones.
func (d *Detector) Check(ctx context.Context, chunk meeting.TranscriptChunk) (*meeting.RepetitionAlert, error) {
	vec, err := d.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return nil, fmt.Errorf("embed statement: %w", err)
	}

	now := chunk.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	similar := d.recordAndMatch(chunk, vec, now)

	// Needs MinOccurrences total including the current statement.
	if len(similar) < d.cfg.MinOccurrences-1 {
		return nil, nil
	}

	j, err := d.judge(ctx, chunk.Text, similar)
	if err != nil {
		return nil, err
	}
	if !j.IsRepetition || j.Confidence < d.cfg.MinConfidence {
		return nil, nil
	}

	oldest := similar[0].timestamp
	alert := &meeting.RepetitionAlert{
		Topic:       j.Topic,
		Occurrences: len(similar) + 1,
		TimeSpan:    now.Sub(oldest),
		Confidence:  j.Confidence,
		Reasoning:   j.Reasoning,
		Suggestions: suggestionsFromReasoning(j.Reasoning),
	}
	d.logger.Info("repetition detected",
		logging.F("session_id", chunk.SessionID),
		logging.F("topic", alert.Topic),
		logging.F("occurrences", alert.Occurrences))
	return alert, nil
}

// CleanupSession drops all remembered statements for a session.
func (d *Detector) CleanupSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, sessionID)
}

// recordAndMatch prunes expired entries, collects in-window matches above
// the similarity threshold, and appends the current statement.
func (d *Detector) recordAndMatch(chunk meeting.TranscriptChunk, vec []float64, now time.Time) []entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.sessions[chunk.SessionID]
	cutoff := now.Add(-d.cfg.Window)
	kept := history[:0]
	var similar []entry
	for _, e := range history {
		if e.timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
		if embedding.Cosine(vec, e.vector) >= d.cfg.SimilarityThreshold {
			similar = append(similar, e)
		}
	}

	kept = append(kept, entry{text: chunk.Text, vector: vec, index: chunk.Index, timestamp: now})
	if len(kept) > d.cfg.MaxEntries {
		kept = kept[len(kept)-d.cfg.MaxEntries:]
	}
	d.sessions[chunk.SessionID] = kept
	return similar
}

func (d *Detector) judge(ctx context.Context, current string, similar []entry) (*repetitionJudgment, error) {
	var b strings.Builder
	b.WriteString("A live meeting has returned to the same topic several times. ")
	b.WriteString("Judge whether this is UNPRODUCTIVE repetition (circling without progress) ")
	b.WriteString("or the discussion building toward a conclusion or decision.\n\nEARLIER STATEMENTS:\n")
	for i, e := range similar {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.text)
	}
	fmt.Fprintf(&b, "\nCURRENT STATEMENT: %s\n\n", current)
	b.WriteString(`Respond with JSON:
{"is_repetition": true|false, "topic": "<short topic label>",
"confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`)

	var j repetitionJudgment
	err := d.provider.CompleteStructured(ctx, ai.CompletionRequest{
		SystemPrompt: "You are an observer of meeting dynamics. You respond with JSON only.",
		Prompt:       b.String(),
		MaxTokens:    d.cfg.MaxTokens,
		Temperature:  d.cfg.Temperature,
		JSONMode:     true,
	}, &j)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// suggestionTemplates map reasoning keywords to an actionable next step.
// Matched in order; each template fires at most once.
var suggestionTemplates = []struct {
	keywords   []string
	suggestion string
}{
	{[]string{"decision", "decide", "undecided"},
		"Call for an explicit decision and record the owner before moving on."},
	{[]string{"disagree", "conflict", "oppos"},
		"Name the disagreement directly and let each side state their position once."},
	{[]string{"unclear", "ambigu", "confus", "vague"},
		"Assign someone to clarify the open point offline and report back."},
	{[]string{"missing", "information", "data", "unknown"},
		"Park the topic until the missing information is available, and note who will get it."},
}

// suggestionsFromReasoning builds suggestions from keywords in the model's
// reasoning, with a generic fallback when nothing matches.
func suggestionsFromReasoning(reasoning string) []string {
	lower := strings.ToLower(reasoning)
	var out []string
	for _, t := range suggestionTemplates {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, t.suggestion)
				break
			}
		}
	}
	if len(out) == 0 {
		out = append(out, "Timebox this topic and move it to a follow-up if it is not resolved in five minutes.")
	}
	return out
}
