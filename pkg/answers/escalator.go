// Package answers resolves detected questions through a four-tier
// escalation: indexed documents, earlier meeting context, a deferred watch
// on the live conversation, and finally a model-generated best effort. The
// first tier clearing the acceptance threshold wins.
package answers

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

// Config controls the escalation behavior.
type Config struct {
	// AcceptanceThreshold is the minimum confidence for an answer to be
	// accepted at any tier. Below-threshold answers escalate to the next
	// tier; at the last tier they become Unanswered.
	AcceptanceThreshold float64
	// DocMinScore is the minimum similarity score for a document to count
	// as relevant in tier 1.
	DocMinScore float64
	// MaxDocuments caps how many retrieved documents feed the synthesis
	// prompt.
	MaxDocuments int
	// MonitorWindow is how long tier 3 watches the live conversation before
	// resolving.
	MonitorWindow time.Duration
	// MaxTokens and Temperature apply to every model call in the escalation.
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns the production escalation settings.
func DefaultConfig() Config {
	return Config{
		AcceptanceThreshold: 0.7,
		DocMinScore:         0.6,
		MaxDocuments:        5,
		MonitorWindow:       2 * time.Minute,
		MaxTokens:           768,
		Temperature:         0.3,
	}
}

// Scope identifies whose indexed content a question may draw on.
type Scope struct {
	SessionID      string
	OrganizationID string
	ProjectID      string
}

// ResultFunc receives the outcome of a deferred (tier 3/4) resolution.
type ResultFunc func(scope Scope, question meeting.Insight, result meeting.AnswerResult)

// Escalator runs the tiered question answering state machine.
type Escalator struct {
	cfg      Config
	searcher search.Searcher
	provider ai.Provider
	logger   logging.Logger
	onResult ResultFunc

	monitors *monitorSet
}

// NewEscalator creates an escalator. onResult is invoked from a background
// goroutine whenever a deferred watch resolves; it must be safe for
// concurrent use.
func NewEscalator(cfg Config, searcher search.Searcher, provider ai.Provider, onResult ResultFunc, logger logging.Logger) *Escalator {
	if cfg.AcceptanceThreshold <= 0 {
		cfg.AcceptanceThreshold = DefaultConfig().AcceptanceThreshold
	}
	if cfg.MonitorWindow <= 0 {
		cfg.MonitorWindow = DefaultConfig().MonitorWindow
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = DefaultConfig().MaxDocuments
	}
	e := &Escalator{
		cfg:      cfg,
		searcher: searcher,
		provider: provider,
		logger:   logger.With(logging.F("component", "answers")),
		onResult: onResult,
	}
	e.monitors = newMonitorSet(e.resolveMonitor)
	return e
}

// answerJudgment is the wire shape for every tier's model call.
type answerJudgment struct {
	Answered   bool    `json:"answered"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Answer attempts tiers 1 and 2 synchronously. When neither clears the
// acceptance threshold it registers a live-conversation watch and returns
// nil; the final result arrives later through the ResultFunc. Tier failures
// (search down, model unavailable) are logged and escalate to the next tier
// rather than dropping the question.
func (e *Escalator) Answer(ctx context.Context, scope Scope, question meeting.Insight, recentContext []meeting.TranscriptChunk) (*meeting.AnswerResult, error) {
	if res := e.answerFromDocuments(ctx, scope, question.Content); res != nil {
		return res, nil
	}
	if res := e.answerFromMeetingContext(ctx, question.Content, recentContext); res != nil {
		return res, nil
	}

	e.logger.Debug("question deferred to live monitoring",
		logging.F("session_id", scope.SessionID),
		logging.F("question", question.Content))
	e.monitors.add(scope, question, e.cfg.MonitorWindow)
	return nil, nil
}

// ObserveChunk feeds a new transcript chunk to every active watch in the
// chunk's session. Safe to call for every chunk; it is a no-op when the
// session has no pending questions.
func (e *Escalator) ObserveChunk(chunk meeting.TranscriptChunk) {
	e.monitors.observe(chunk)
}

// CleanupSession cancels all pending watches for a session. Their questions
// resolve as Unanswered without firing the callback.
func (e *Escalator) CleanupSession(sessionID string) {
	e.monitors.cleanupSession(sessionID)
}

// Tier 1: retrieve relevant indexed documents and synthesize an answer
// citing them.
func (e *Escalator) answerFromDocuments(ctx context.Context, scope Scope, question string) *meeting.AnswerResult {
	matches, err := e.searcher.Search(ctx, search.Query{
		Text:           question,
		OrganizationID: scope.OrganizationID,
		ProjectID:      scope.ProjectID,
		SessionID:      scope.SessionID,
		Kinds:          []search.Kind{search.KindDocument, search.KindDecision},
		Limit:          e.cfg.MaxDocuments,
		MinScore:       e.cfg.DocMinScore,
	})
	if err != nil {
		e.logger.Warn("document retrieval failed, escalating", logging.Err(err))
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Answer the question using ONLY the documents below. ")
	b.WriteString("If they do not contain the answer, say so with answered=false.\n\nDOCUMENTS:\n")
	sources := make([]string, 0, len(matches))
	for i, m := range matches {
		if i >= e.cfg.MaxDocuments {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.Content)
		if m.Source != "" {
			sources = append(sources, m.Source)
		} else {
			sources = append(sources, m.ID)
		}
	}
	fmt.Fprintf(&b, "\nQUESTION: %s\n\n%s", question, judgmentFormat)

	j, err := e.judge(ctx, b.String())
	if err != nil || !e.accepted(j) {
		return nil
	}
	return &meeting.AnswerResult{
		Question:   question,
		AnswerText: j.Answer,
		Confidence: j.Confidence,
		Source:     meeting.SourceRAG,
		Sources:    sources,
		Reasoning:  j.Reasoning,
	}
}

// Tier 2: check whether the answer was already spoken earlier in this
// meeting.
func (e *Escalator) answerFromMeetingContext(ctx context.Context, question string, recentContext []meeting.TranscriptChunk) *meeting.AnswerResult {
	if len(recentContext) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Below is the earlier transcript of the meeting currently in progress. ")
	b.WriteString("Determine whether the question was ALREADY answered in it. ")
	b.WriteString("Do not guess beyond what was said.\n\nTRANSCRIPT:\n")
	for _, c := range recentContext {
		writeTranscriptLine(&b, c)
	}
	fmt.Fprintf(&b, "\nQUESTION: %s\n\n%s", question, judgmentFormat)

	j, err := e.judge(ctx, b.String())
	if err != nil || !e.accepted(j) {
		return nil
	}
	return &meeting.AnswerResult{
		Question:   question,
		AnswerText: j.Answer,
		Confidence: j.Confidence,
		Source:     meeting.SourceMeetingContext,
		Reasoning:  j.Reasoning,
	}
}

// resolveMonitor finishes a deferred watch: tier 3 over the conversation
// captured during the window, then the tier 4 fallback. Runs on a timer
// goroutine, so failures degrade to Unanswered instead of returning errors.
func (e *Escalator) resolveMonitor(m *monitor) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := e.answerFromConversation(ctx, m)
	if result == nil {
		result = e.answerFromModel(ctx, m.question.Content)
	}
	if result == nil {
		result = &meeting.AnswerResult{
			Question: m.question.Content,
			Source:   meeting.SourceUnanswered,
		}
	}

	e.logger.Info("deferred question resolved",
		logging.F("session_id", m.scope.SessionID),
		logging.F("source", string(result.Source)))
	if e.onResult != nil {
		e.onResult(m.scope, m.question, *result)
	}
}

// Tier 3: judge whether the conversation observed during the watch window
// answered the question.
func (e *Escalator) answerFromConversation(ctx context.Context, m *monitor) *meeting.AnswerResult {
	captured := m.transcript()
	if captured == "" {
		return nil
	}

	var b strings.Builder
	b.WriteString("A question was raised in a live meeting. Below is what was said AFTER it. ")
	b.WriteString("Determine whether the subsequent conversation answered the question.\n\nCONVERSATION:\n")
	b.WriteString(captured)
	fmt.Fprintf(&b, "\nQUESTION: %s\n\n%s", m.question.Content, judgmentFormat)

	j, err := e.judge(ctx, b.String())
	if err != nil || !e.accepted(j) {
		return nil
	}
	return &meeting.AnswerResult{
		Question:   m.question.Content,
		AnswerText: j.Answer,
		Confidence: j.Confidence,
		Source:     meeting.SourceLiveConversation,
		Reasoning:  j.Reasoning,
	}
}

// Tier 4: best-effort general-knowledge answer, explicitly flagged as not
// sourced from any document.
func (e *Escalator) answerFromModel(ctx context.Context, question string) *meeting.AnswerResult {
	prompt := fmt.Sprintf("Answer the question from general knowledge. "+
		"Set answered=false if a reliable answer requires information you do not have.\n\nQUESTION: %s\n\n%s",
		question, judgmentFormat)

	j, err := e.judge(ctx, prompt)
	if err != nil || !e.accepted(j) {
		return nil
	}
	return &meeting.AnswerResult{
		Question:   question,
		AnswerText: j.Answer,
		Confidence: j.Confidence,
		Source:     meeting.SourceGPTGenerated,
		Reasoning:  j.Reasoning,
	}
}

const judgmentFormat = `Respond with JSON:
{"answered": true|false, "answer": "<answer or empty>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

const answerSystemPrompt = `You are a careful meeting assistant. You answer questions only when the
provided material supports it, and you report honest confidence. You respond
with JSON only.`

func (e *Escalator) judge(ctx context.Context, prompt string) (*answerJudgment, error) {
	var j answerJudgment
	err := e.provider.CompleteStructured(ctx, ai.CompletionRequest{
		SystemPrompt: answerSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    e.cfg.MaxTokens,
		Temperature:  e.cfg.Temperature,
		JSONMode:     true,
	}, &j)
	if err != nil {
		e.logger.Warn("answer judgment failed", logging.Err(err))
		return nil, err
	}
	return &j, nil
}

func (e *Escalator) accepted(j *answerJudgment) bool {
	return j.Answered && j.Answer != "" && j.Confidence >= e.cfg.AcceptanceThreshold
}

func writeTranscriptLine(b *strings.Builder, c meeting.TranscriptChunk) {
	if c.Speaker != "" {
		fmt.Fprintf(b, "%s: %s\n", c.Speaker, c.Text)
		return
	}
	b.WriteString(c.Text)
	b.WriteByte('\n')
}
