// Package conflicts checks new decision statements against historical
// decisions and raises an alert when the model judges a genuine
// contradiction. Similarity search gates the model call: no candidates, no
// tokens spent.
package conflicts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/ai"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
	"github.com/otherjamesbrown/penf-live/pkg/search"
)

// Config controls conflict detection.
type Config struct {
	// SimilarityThreshold gates which historical decisions are even
	// considered as conflict candidates.
	SimilarityThreshold float64
	// MinConfidence discards model judgments below this certainty.
	MinConfidence float64
	// MaxCandidates caps how many historical decisions feed the judgment
	// prompt.
	MaxCandidates int
	// RecentWindow is the age under which a contradicted decision makes the
	// conflict high severity.
	RecentWindow time.Duration
	MaxTokens    int
	Temperature  float64
}

// DefaultConfig returns the production conflict detection settings.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.75,
		MinConfidence:       0.7,
		MaxCandidates:       5,
		RecentWindow:        30 * 24 * time.Hour,
		MaxTokens:           768,
		Temperature:         0.2,
	}
}

// Detector finds contradictions between live statements and recorded
// decisions.
type Detector struct {
	cfg      Config
	searcher search.Searcher
	provider ai.Provider
	logger   logging.Logger
}

// NewDetector creates a conflict detector.
func NewDetector(cfg Config, searcher search.Searcher, provider ai.Provider, logger logging.Logger) *Detector {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultConfig().RecentWindow
	}
	return &Detector{
		cfg:      cfg,
		searcher: searcher,
		provider: provider,
		logger:   logger.With(logging.F("component", "conflicts")),
	}
}

// conflictJudgment is the wire shape of the model's verdict.
type conflictJudgment struct {
	IsConflict           bool     `json:"is_conflict"`
	ConflictingStatement string   `json:"conflicting_statement"`
	Severity             string   `json:"severity"`
	Confidence           float64  `json:"confidence"`
	Reasoning            string   `json:"reasoning"`
	Suggestions          []string `json:"suggestions"`
}

// Detect checks statement against recorded decisions for the project and
// organization. Returns nil when there is no conflict. Similarity alone is
// never enough to alert: two compatible statements about the same topic are
// expected to score high, so contradiction is delegated to the model.
func (d *Detector) Detect(ctx context.Context, scope Scope, statement string, recentContext []meeting.TranscriptChunk) (*meeting.ConflictAlert, error) {
	matches, err := d.searcher.Search(ctx, search.Query{
		Text:           statement,
		OrganizationID: scope.OrganizationID,
		ProjectID:      scope.ProjectID,
		SessionID:      scope.SessionID,
		Kinds:          []search.Kind{search.KindDecision},
		Limit:          d.cfg.MaxCandidates,
		MinScore:       d.cfg.SimilarityThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("conflict candidate search: %w", err)
	}
	if len(matches) == 0 {
		// Nothing similar on record; skip the model call entirely.
		return nil, nil
	}

	j, err := d.judge(ctx, statement, matches, recentContext)
	if err != nil {
		return nil, err
	}
	if !j.IsConflict || j.Confidence < d.cfg.MinConfidence {
		return nil, nil
	}

	alert := &meeting.ConflictAlert{
		CurrentStatement:      statement,
		ConflictingReference:  j.ConflictingStatement,
		Severity:              d.severity(j, matches),
		Confidence:            j.Confidence,
		Reasoning:             j.Reasoning,
		ResolutionSuggestions: j.Suggestions,
	}
	d.logger.Info("conflict detected",
		logging.F("session_id", scope.SessionID),
		logging.F("severity", string(alert.Severity)),
		logging.F("confidence", alert.Confidence))
	return alert, nil
}

// Scope identifies whose decision history a statement is checked against.
type Scope struct {
	SessionID      string
	OrganizationID string
	ProjectID      string
}

func (d *Detector) judge(ctx context.Context, statement string, matches []search.Match, recentContext []meeting.TranscriptChunk) (*conflictJudgment, error) {
	var b strings.Builder
	b.WriteString("A decision-like statement was just made in a live meeting. ")
	b.WriteString("Compare it against the recorded decisions below and judge whether it GENUINELY ")
	b.WriteString("contradicts or reverses one of them. A refinement, a narrower scope, or a ")
	b.WriteString("compatible addition is NOT a conflict.\n\nRECORDED DECISIONS:\n")
	for i, m := range matches {
		if i >= d.cfg.MaxCandidates {
			break
		}
		if m.Timestamp != "" {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, m.Timestamp, m.Content)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, m.Content)
		}
	}

	if len(recentContext) > 0 {
		b.WriteString("\nRECENT MEETING CONTEXT:\n")
		for _, c := range recentContext {
			b.WriteString(c.Text)
			b.WriteByte('\n')
		}
	}

	fmt.Fprintf(&b, "\nNEW STATEMENT: %s\n\n", statement)
	b.WriteString(`Respond with JSON:
{"is_conflict": true|false, "conflicting_statement": "<the recorded decision it contradicts, or empty>",
"severity": "high|medium|low", "confidence": <0.0-1.0>,
"reasoning": "<one sentence>", "suggestions": ["<how to resolve>", ...]}`)

	var j conflictJudgment
	err := d.provider.CompleteStructured(ctx, ai.CompletionRequest{
		SystemPrompt: "You are a precise analyst of meeting decisions. You flag only real contradictions and respond with JSON only.",
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

// severity applies the recency policy on top of the model's grade: a
// confident reversal of a decision recorded within the recent window is
// always high severity, whatever the model said.
func (d *Detector) severity(j *conflictJudgment, matches []search.Match) meeting.Severity {
	sev := meeting.Severity(j.Severity)
	switch sev {
	case meeting.SeverityHigh, meeting.SeverityMedium, meeting.SeverityLow:
	default:
		sev = meeting.SeverityMedium
	}

	if j.Confidence >= 0.85 && d.contradictedRecently(j.ConflictingStatement, matches) {
		return meeting.SeverityHigh
	}
	return sev
}

// contradictedRecently reports whether the contradicted decision carries a
// timestamp inside the recent window. Unparseable or missing timestamps
// count as not recent.
func (d *Detector) contradictedRecently(reference string, matches []search.Match) bool {
	for _, m := range matches {
		if reference != "" && !strings.Contains(m.Content, reference) && m.Content != reference {
			continue
		}
		if m.Timestamp == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, m.Timestamp)
		if err != nil {
			continue
		}
		if time.Since(ts) <= d.cfg.RecentWindow {
			return true
		}
	}
	return false
}
