// Package pipeline orchestrates the live meeting insight flow: chunks are
// validated, dedup-gated, mined for insights, and the results fan out to
// every connected client. One goroutine per session keeps chunk processing
// sequential within a meeting while sessions run fully in parallel.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/penf-live/pkg/ai"
	"github.com/otherjamesbrown/penf-live/pkg/answers"
	"github.com/otherjamesbrown/penf-live/pkg/conflicts"
	"github.com/otherjamesbrown/penf-live/pkg/dedup"
	"github.com/otherjamesbrown/penf-live/pkg/delivery"
	"github.com/otherjamesbrown/penf-live/pkg/embedding"
	"github.com/otherjamesbrown/penf-live/pkg/extraction"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
	"github.com/otherjamesbrown/penf-live/pkg/repetition"
	"github.com/otherjamesbrown/penf-live/pkg/search"
	"github.com/otherjamesbrown/penf-live/pkg/segments"
	"github.com/otherjamesbrown/penf-live/pkg/session"
	"github.com/otherjamesbrown/penf-live/pkg/store"
	"github.com/otherjamesbrown/penf-live/pkg/validator"
)

// Options bundles the per-component configuration.
type Options struct {
	Validator  validator.Config
	Dedup      dedup.Config
	Extraction extraction.Config
	Answers    answers.Config
	Conflicts  conflicts.Config
	Repetition repetition.Config
	Segments   segments.Config
	Session    session.Config
	Retry      ai.RetryPolicy

	// SegmentTickInterval is how often the periodic time-based segment
	// check runs across live sessions.
	SegmentTickInterval time.Duration
	// RelatedHistoryLimit caps background matches fed to extraction.
	RelatedHistoryLimit int
}

// DefaultOptions returns production defaults for every component.
func DefaultOptions() Options {
	return Options{
		Validator:           validator.DefaultConfig(),
		Dedup:               dedup.DefaultConfig(),
		Extraction:          extraction.DefaultConfig(),
		Answers:             answers.DefaultConfig(),
		Conflicts:           conflicts.DefaultConfig(),
		Repetition:          repetition.DefaultConfig(),
		Segments:            segments.DefaultConfig(),
		Session:             session.DefaultConfig(),
		Retry:               ai.DefaultRetryPolicy(),
		SegmentTickInterval: 30 * time.Second,
		RelatedHistoryLimit: 3,
	}
}

// Deps are the external collaborators the pipeline is wired to.
type Deps struct {
	Provider ai.Provider
	Embedder embedding.Client
	Searcher search.Searcher
	Store    store.InsightStore
	Bridge   *delivery.Bridge
	Registry *delivery.Registry
	Metrics  *observability.PipelineMetrics
	Tracer   *observability.Tracer
	Logger   logging.Logger
}

// sessionCleaner is implemented by every component holding per-session
// state.
type sessionCleaner interface {
	CleanupSession(sessionID string)
}

// Pipeline is the live insight processing engine.
type Pipeline struct {
	opts Options
	deps Deps

	validator  *validator.Validator
	dedup      *dedup.Detector
	extractor  *extraction.Engine
	answers    *answers.Escalator
	conflicts  *conflicts.Detector
	repetition *repetition.Detector
	segments   *segments.Detector
	sessions   *session.Tracker
	logger     logging.Logger

	mu    sync.Mutex
	loops map[string]chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New wires the pipeline components. The question escalator's deferred
// results flow back through the pipeline so they pass the same stale-result
// guard and delivery path as synchronous results.
func New(opts Options, deps Deps) *Pipeline {
	logger := deps.Logger.With(logging.F("component", "pipeline"))
	provider := newInstrumentedProvider(deps.Provider, deps.Metrics, deps.Tracer)
	embedder := newInstrumentedEmbedder(deps.Embedder, deps.Metrics, deps.Tracer)
	p := &Pipeline{
		opts:       opts,
		deps:       deps,
		validator:  validator.New(opts.Validator),
		dedup:      dedup.New(opts.Dedup, embedder, deps.Logger),
		extractor:  extraction.NewEngine(opts.Extraction, provider, deps.Logger),
		conflicts:  conflicts.NewDetector(opts.Conflicts, deps.Searcher, provider, deps.Logger),
		repetition: repetition.NewDetector(opts.Repetition, embedder, provider, deps.Logger),
		segments:   segments.NewDetector(opts.Segments, deps.Logger),
		sessions:   session.NewTracker(opts.Session, deps.Logger),
		logger:     logger,
		loops:      make(map[string]chan struct{}),
		done:       make(chan struct{}),
	}
	p.answers = answers.NewEscalator(opts.Answers, deps.Searcher, provider, p.handleDeferredAnswer, deps.Logger)
	return p
}

// Run starts the periodic segment check and blocks until Close or ctx
// cancellation.
func (p *Pipeline) Run(ctx context.Context) {
	interval := p.opts.SegmentTickInterval
	if interval <= 0 {
		interval = DefaultOptions().SegmentTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.tickSegments(ctx)
		}
	}
}

// Close stops background work and waits for per-session loops to drain.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	for _, id := range p.sessions.LiveSessions() {
		p.EndSession(context.Background(), id)
	}
	p.wg.Wait()
}

// Sessions exposes the tracker for the HTTP layer.
func (p *Pipeline) Sessions() *session.Tracker {
	return p.sessions
}

// SubmitChunk accepts a transcript chunk for processing. The session is
// created on first sight. Returns the chunk as enqueued along with how many
// older chunks were evicted to make room.
func (p *Pipeline) SubmitChunk(sessionID, text, speaker string, duration float64, opts session.Options) (meeting.TranscriptChunk, int, error) {
	s, err := p.sessions.Start(sessionID, opts)
	if err != nil {
		return meeting.TranscriptChunk{}, 0, err
	}
	p.ensureLoop(s)

	chunk := meeting.TranscriptChunk{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Text:            text,
		Speaker:         speaker,
		DurationSeconds: duration,
		Timestamp:       time.Now().UTC(),
		Index:           s.NextIndex(),
	}

	dropped, err := s.Enqueue(chunk)
	if err != nil {
		return chunk, 0, err
	}
	if dropped > 0 {
		p.logger.Warn("intake queue full, dropped oldest chunks",
			logging.F("session_id", sessionID),
			logging.F("dropped", dropped))
		p.deps.Metrics.ChunksDroppedTotal.WithLabelValues(opts.OrganizationID).Add(float64(dropped))
	}
	p.deps.Metrics.ChunksReceivedTotal.WithLabelValues(opts.OrganizationID).Inc()
	p.deps.Metrics.IntakeQueueDepth.WithLabelValues(sessionID).Set(float64(s.QueueDepth()))
	return chunk, dropped, nil
}

// EndSession finishes a meeting: publishes the summary and terminal
// boundary, then synchronously clears per-session state in every component.
// Cleanup waits for the session loop to finish its in-flight chunk first,
// so state re-created by a stage mid-chunk cannot outlive the cleanup.
func (p *Pipeline) EndSession(ctx context.Context, sessionID string) bool {
	s, ok := p.sessions.End(sessionID)
	if !ok {
		return false
	}

	p.mu.Lock()
	loopDone := p.loops[sessionID]
	p.mu.Unlock()
	if loopDone != nil {
		<-loopDone
	}

	p.publishSummary(ctx, s)
	if b := p.segments.End(sessionID); b != nil {
		p.publish(ctx, sessionID, delivery.EventSegmentTransition, boundaryEvent{
			SessionID: sessionID,
			Boundary:  *b,
		})
		p.deps.Metrics.BoundariesTotal.WithLabelValues(string(b.Type)).Inc()
	}

	p.cleanupSession(sessionID)
	return true
}

// cleanupSession clears per-session state everywhere. The validator is
// stateless; everything else holds history.
func (p *Pipeline) cleanupSession(sessionID string) {
	p.dedup.CleanupSession(sessionID)
	p.repetition.CleanupSession(sessionID)
	p.answers.CleanupSession(sessionID)
	p.segments.CleanupSession(sessionID)
	if cleaner, ok := p.deps.Searcher.(sessionCleaner); ok {
		cleaner.CleanupSession(sessionID)
	}
	if p.deps.Registry != nil {
		p.deps.Registry.CleanupSession(sessionID)
	}
	p.deps.Metrics.IntakeQueueDepth.DeleteLabelValues(sessionID)

	p.mu.Lock()
	delete(p.loops, sessionID)
	p.mu.Unlock()
}

// ensureLoop starts the session's processing goroutine exactly once. The
// loop's done channel closes after the final chunk finishes; EndSession
// waits on it before clearing state.
func (p *Pipeline) ensureLoop(s *session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.loops[s.ID]; ok {
		return
	}
	done := make(chan struct{})
	p.loops[s.ID] = done
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(done)
		for {
			chunk, ok := s.Dequeue()
			if !ok {
				return
			}
			if !p.sessions.Alive(s.ID) {
				// Session ended while this chunk was queued.
				continue
			}
			p.processChunk(context.Background(), s, chunk)
		}
	}()
}

// tickSegments runs the time-based boundary check for every live session.
func (p *Pipeline) tickSegments(ctx context.Context) {
	for _, id := range p.sessions.LiveSessions() {
		if b := p.segments.Tick(id); b != nil {
			p.publish(ctx, id, delivery.EventSegmentTransition, boundaryEvent{
				SessionID: id,
				Boundary:  *b,
			})
			p.deps.Metrics.BoundariesTotal.WithLabelValues(string(b.Type)).Inc()
		}
	}
}

// handleDeferredAnswer receives tier 3/4 escalation outcomes. Results for
// sessions that already ended are discarded.
func (p *Pipeline) handleDeferredAnswer(scope answers.Scope, question meeting.Insight, result meeting.AnswerResult) {
	if !p.sessions.Alive(scope.SessionID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.deps.Metrics.AnswersTotal.WithLabelValues(string(result.Source)).Inc()
	p.publish(ctx, scope.SessionID, delivery.EventAutoAnswer, answerEvent{
		SessionID: scope.SessionID,
		InsightID: question.ID,
		Answer:    result,
	})
}

// publish sends one envelope to the session channel. Delivery failures are
// logged and never interrupt processing.
func (p *Pipeline) publish(ctx context.Context, sessionID, eventType string, data interface{}) {
	ctx, span := p.deps.Tracer.StartPublishSpan(ctx, eventType)
	env := delivery.NewEnvelope(eventType, data)
	err := p.deps.Bridge.Publish(ctx, sessionID, env)
	observability.EndSpan(span, err)
	if err != nil {
		p.logger.Error("publish failed",
			logging.F("session_id", sessionID),
			logging.F("event_type", eventType),
			logging.Err(err))
		return
	}
	p.deps.Metrics.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// publishSummary aggregates the session's stored insights into the final
// summary event. Best-effort: without a store listing the summary carries
// zero counts.
func (p *Pipeline) publishSummary(ctx context.Context, s *session.Session) {
	records, err := p.deps.Store.ListSessionInsights(ctx, s.ID)
	if err != nil {
		p.logger.Warn("listing insights for summary failed",
			logging.F("session_id", s.ID), logging.Err(err))
	}

	counts := make(map[meeting.InsightType]int)
	for _, r := range records {
		counts[r.Type]++
	}
	p.publish(ctx, s.ID, delivery.EventMeetingSummary, summaryEvent{
		SessionID:     s.ID,
		StartedAt:     s.StartedAt,
		EndedAt:       time.Now().UTC(),
		InsightCounts: counts,
		Insights:      records,
	})
}
