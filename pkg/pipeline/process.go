package pipeline

import (
	"context"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/answers"
	"github.com/otherjamesbrown/penf-live/pkg/conflicts"
	"github.com/otherjamesbrown/penf-live/pkg/delivery"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
	"github.com/otherjamesbrown/penf-live/pkg/search"
	"github.com/otherjamesbrown/penf-live/pkg/session"
)

// Event payloads. Every payload carries the session ID so clients can
// correlate events to their stream.
type transcriptEvent struct {
	SessionID string                  `json:"session_id"`
	Chunk     meeting.TranscriptChunk `json:"chunk"`
}

type insightEvent struct {
	SessionID string                    `json:"session_id"`
	Insight   meeting.LiveInsightRecord `json:"insight"`
}

type answerEvent struct {
	SessionID string               `json:"session_id"`
	InsightID string               `json:"insight_id"`
	Answer    meeting.AnswerResult `json:"answer"`
}

type conflictEvent struct {
	SessionID  string                `json:"session_id"`
	ChunkIndex int64                 `json:"chunk_index"`
	Alert      meeting.ConflictAlert `json:"alert"`
}

type repetitionEvent struct {
	SessionID string                  `json:"session_id"`
	Alert     meeting.RepetitionAlert `json:"alert"`
}

type boundaryEvent struct {
	SessionID string                  `json:"session_id"`
	Boundary  meeting.SegmentBoundary `json:"boundary"`
}

type summaryEvent struct {
	SessionID     string                      `json:"session_id"`
	StartedAt     time.Time                   `json:"started_at"`
	EndedAt       time.Time                   `json:"ended_at"`
	InsightCounts map[meeting.InsightType]int `json:"insight_counts"`
	Insights      []meeting.LiveInsightRecord `json:"insights"`
}

// processChunk runs one chunk through the full pipeline. Every detection
// feature is best-effort: an external failure skips that feature for this
// chunk and the transcript keeps flowing.
func (p *Pipeline) processChunk(ctx context.Context, s *session.Session, chunk meeting.TranscriptChunk) {
	started := time.Now()
	ctx, span := p.deps.Tracer.StartChunkSpan(ctx, s.ID, chunk.Index)
	defer span.End()
	log := p.logger.With(
		logging.F("session_id", s.ID),
		logging.F("chunk_index", chunk.Index))

	// Quality gate. Rejection is expected and frequent, not an error.
	verdict := p.validator.Validate(chunk.Text)
	if !verdict.IsValid {
		p.deps.Metrics.ChunksRejectedTotal.WithLabelValues(string(verdict.Quality)).Inc()
		log.Debug("chunk rejected",
			logging.F("quality", string(verdict.Quality)),
			logging.F("reason", verdict.Reason))
		return
	}

	p.publish(ctx, s.ID, delivery.EventTranscriptionFinal, transcriptEvent{
		SessionID: s.ID,
		Chunk:     chunk,
	})

	// Cost gate: a near-duplicate chunk stops here, before any model call.
	isDup, similarity, err := p.dedup.IsDuplicate(ctx, s.ID, chunk)
	if err != nil {
		log.Warn("duplicate check failed, processing chunk anyway", logging.Err(err))
	} else if isDup {
		p.deps.Metrics.DuplicatesTotal.WithLabelValues(s.OrganizationID()).Inc()
		log.Debug("duplicate chunk skipped", logging.F("similarity", similarity))
		s.AppendContext(chunk)
		return
	}

	// Open tier-3 watches see every surviving chunk.
	p.answers.ObserveChunk(chunk)

	rollingContext := s.RecentContext()
	related := p.relatedHistory(ctx, s, chunk.Text)

	var insights []meeting.Insight
	extractCtx, extractSpan := p.deps.Tracer.StartStageSpan(ctx, "extraction")
	extractErr := p.opts.Retry.Do(extractCtx, func() error {
		var err error
		insights, err = p.extractor.Extract(extractCtx, chunk, rollingContext, related, s.EnabledTypes())
		return err
	})
	observability.EndSpan(extractSpan, extractErr)
	if extractErr != nil {
		log.Warn("extraction failed, skipping chunk insights", logging.Err(extractErr))
	}

	// Results arriving after session end are discarded.
	if !p.sessions.Alive(s.ID) {
		return
	}

	for _, in := range insights {
		p.handleInsight(ctx, s, chunk, in)
	}

	if alert := p.checkRepetition(ctx, s, chunk); alert != nil {
		p.publish(ctx, s.ID, delivery.EventFollowUp, repetitionEvent{
			SessionID: s.ID,
			Alert:     *alert,
		})
	}

	if b := p.segments.Observe(chunk); b != nil {
		p.deps.Metrics.BoundariesTotal.WithLabelValues(string(b.Type)).Inc()
		p.publish(ctx, s.ID, delivery.EventSegmentTransition, boundaryEvent{
			SessionID: s.ID,
			Boundary:  *b,
		})
	}

	s.AppendContext(chunk)
	p.deps.Metrics.ChunkLatencySeconds.WithLabelValues(s.OrganizationID()).Observe(time.Since(started).Seconds())
}

// handleInsight persists, publishes, and dispatches one insight to its
// type-specific follow-up.
func (p *Pipeline) handleInsight(ctx context.Context, s *session.Session, chunk meeting.TranscriptChunk, in meeting.Insight) {
	p.deps.Metrics.InsightsTotal.WithLabelValues(string(in.Type), string(in.Priority)).Inc()

	record := meeting.RecordFromInsight(in, s.ProjectID(), s.OrganizationID())
	saved, err := p.deps.Store.SaveInsight(ctx, record)
	if err != nil {
		p.logger.Warn("insight persistence failed, delivering live anyway",
			logging.F("session_id", s.ID), logging.Err(err))
		saved = record
	}

	p.publish(ctx, s.ID, eventTypeForInsight(in.Type), insightEvent{
		SessionID: s.ID,
		Insight:   saved,
	})

	switch in.Type {
	case meeting.InsightQuestion:
		p.escalateQuestion(ctx, s, in)
	case meeting.InsightDecision:
		p.checkConflict(ctx, s, chunk, in)
	}
}

// escalateQuestion runs tiers 1-2 inline; a deferred watch reports back
// through handleDeferredAnswer.
func (p *Pipeline) escalateQuestion(ctx context.Context, s *session.Session, in meeting.Insight) {
	scope := answers.Scope{
		SessionID:      s.ID,
		OrganizationID: s.OrganizationID(),
		ProjectID:      s.ProjectID(),
	}
	result, err := p.answers.Answer(ctx, scope, in, s.RecentContext())
	if err != nil {
		p.logger.Warn("question escalation failed",
			logging.F("session_id", s.ID), logging.Err(err))
		return
	}
	if result == nil {
		// Deferred to live monitoring.
		return
	}

	p.deps.Metrics.AnswersTotal.WithLabelValues(string(result.Source)).Inc()
	p.publish(ctx, s.ID, delivery.EventAutoAnswer, answerEvent{
		SessionID: s.ID,
		InsightID: in.ID,
		Answer:    *result,
	})
}

// checkConflict compares a decision against recorded history.
func (p *Pipeline) checkConflict(ctx context.Context, s *session.Session, chunk meeting.TranscriptChunk, in meeting.Insight) {
	scope := conflicts.Scope{
		SessionID:      s.ID,
		OrganizationID: s.OrganizationID(),
		ProjectID:      s.ProjectID(),
	}
	alert, err := p.conflicts.Detect(ctx, scope, in.Content, s.RecentContext())
	if err != nil {
		p.logger.Warn("conflict check skipped",
			logging.F("session_id", s.ID), logging.Err(err))
		return
	}
	if alert == nil {
		return
	}

	p.deps.Metrics.ConflictsTotal.WithLabelValues(string(alert.Severity)).Inc()
	p.publish(ctx, s.ID, delivery.EventConflictDetected, conflictEvent{
		SessionID:  s.ID,
		ChunkIndex: chunk.Index,
		Alert:      *alert,
	})
}

// checkRepetition records the chunk and reports a completed repetition
// pattern, if any.
func (p *Pipeline) checkRepetition(ctx context.Context, s *session.Session, chunk meeting.TranscriptChunk) *meeting.RepetitionAlert {
	alert, err := p.repetition.Check(ctx, chunk)
	if err != nil {
		p.logger.Warn("repetition check skipped",
			logging.F("session_id", s.ID), logging.Err(err))
		return nil
	}
	if alert != nil {
		p.deps.Metrics.RepetitionsTotal.WithLabelValues(s.OrganizationID()).Inc()
	}
	return alert
}

// relatedHistory pulls background matches from past meetings for the
// extraction prompt. Best-effort.
func (p *Pipeline) relatedHistory(ctx context.Context, s *session.Session, text string) []search.Match {
	limit := p.opts.RelatedHistoryLimit
	if limit <= 0 {
		return nil
	}
	matches, err := p.deps.Searcher.Search(ctx, search.Query{
		Text:           text,
		OrganizationID: s.OrganizationID(),
		ProjectID:      s.ProjectID(),
		SessionID:      s.ID,
		Kinds:          []search.Kind{search.KindMeeting},
		Limit:          limit,
	})
	if err != nil {
		p.logger.Debug("related history lookup failed", logging.Err(err))
		return nil
	}
	return matches
}

// eventTypeForInsight maps insight categories to client event types.
func eventTypeForInsight(t meeting.InsightType) string {
	switch t {
	case meeting.InsightQuestion:
		return delivery.EventQuestionDetected
	case meeting.InsightAction:
		return delivery.EventActionTracked
	default:
		return delivery.EventInsightDetected
	}
}
