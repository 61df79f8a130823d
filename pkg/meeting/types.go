// Package meeting defines the data model for the live meeting insight
// pipeline: transcript chunks, typed insights, answers, alerts, and segment
// boundaries.
package meeting

import (
	"time"
)

// TranscriptChunk is a bounded unit of transcript text. Chunks are immutable
// once created and ordered by Index within a session.
type TranscriptChunk struct {
	ID              string    `json:"chunk_id"`
	SessionID       string    `json:"session_id"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	Index           int64     `json:"index"`
	Speaker         string    `json:"speaker,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// InsightType identifies the kind of insight extracted from a chunk.
type InsightType string

const (
	InsightDecision InsightType = "decision"
	InsightRisk     InsightType = "risk"
	InsightQuestion InsightType = "question"
	InsightAction   InsightType = "action"
	InsightKeyPoint InsightType = "key_point"
)

// AllInsightTypes lists every insight category in a stable order.
var AllInsightTypes = []InsightType{
	InsightDecision,
	InsightRisk,
	InsightQuestion,
	InsightAction,
	InsightKeyPoint,
}

// Valid reports whether t is a known insight type.
func (t InsightType) Valid() bool {
	switch t {
	case InsightDecision, InsightRisk, InsightQuestion, InsightAction, InsightKeyPoint:
		return true
	}
	return false
}

// Priority ranks how urgently an insight needs attention.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Insight is a single typed finding extracted from the live transcript.
// AssignedTo and DueDate are only populated for actions and questions.
type Insight struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	ChunkIndex int64       `json:"chunk_index"`
	Type       InsightType `json:"type"`
	Priority   Priority    `json:"priority"`
	Content    string      `json:"content"`
	Confidence float64     `json:"confidence"`
	AssignedTo string      `json:"assigned_to,omitempty"`
	DueDate    string      `json:"due_date,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// AnswerSource identifies which escalation tier produced an answer.
type AnswerSource string

const (
	SourceRAG              AnswerSource = "rag"
	SourceMeetingContext   AnswerSource = "meeting_context"
	SourceLiveConversation AnswerSource = "live_conversation"
	SourceGPTGenerated     AnswerSource = "gpt_generated"
	SourceUserProvided     AnswerSource = "user_provided"
	SourceUnanswered       AnswerSource = "unanswered"
)

// AnswerResult is the immutable outcome of a question escalation.
type AnswerResult struct {
	Question   string       `json:"question"`
	AnswerText string       `json:"answer_text"`
	Confidence float64      `json:"confidence"`
	Source     AnswerSource `json:"source"`
	Sources    []string     `json:"sources,omitempty"`
	Reasoning  string       `json:"reasoning,omitempty"`
}

// Answered reports whether the escalation produced an accepted answer.
func (r AnswerResult) Answered() bool {
	return r.Source != SourceUnanswered
}

// Severity grades a detected conflict.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ConflictAlert flags a statement that contradicts an earlier decision.
type ConflictAlert struct {
	CurrentStatement      string   `json:"current_statement"`
	ConflictingReference  string   `json:"conflicting_reference"`
	Severity              Severity `json:"severity"`
	Confidence            float64  `json:"confidence"`
	Reasoning             string   `json:"reasoning"`
	ResolutionSuggestions []string `json:"resolution_suggestions,omitempty"`
}

// RepetitionAlert flags a topic that keeps recurring without resolution.
type RepetitionAlert struct {
	Topic       string        `json:"topic"`
	Occurrences int           `json:"occurrences"`
	TimeSpan    time.Duration `json:"time_span"`
	Confidence  float64       `json:"confidence"`
	Reasoning   string        `json:"reasoning"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// BoundaryType identifies what triggered a segment boundary.
type BoundaryType string

const (
	BoundaryTimeInterval     BoundaryType = "time_interval"
	BoundaryLongPause        BoundaryType = "long_pause"
	BoundaryTransitionPhrase BoundaryType = "transition_phrase"
	BoundaryMeetingEnd       BoundaryType = "meeting_end"
)

// SegmentBoundary marks a detected topic or meeting transition.
type SegmentBoundary struct {
	Type        BoundaryType `json:"type"`
	Description string       `json:"description"`
}

// LiveInsightRecord is the durable projection of an Insight handed to the
// external persistence collaborator. The record ID is assigned by storage.
type LiveInsightRecord struct {
	RecordID       int64       `json:"record_id,omitempty"`
	SessionID      string      `json:"session_id"`
	ProjectID      string      `json:"project_id,omitempty"`
	OrganizationID string      `json:"organization_id,omitempty"`
	InsightID      string      `json:"insight_id"`
	Type           InsightType `json:"type"`
	Priority       Priority    `json:"priority"`
	Content        string      `json:"content"`
	Confidence     float64     `json:"confidence"`
	AssignedTo     string      `json:"assigned_to,omitempty"`
	DueDate        string      `json:"due_date,omitempty"`
	ChunkIndex     int64       `json:"chunk_index"`
	CreatedAt      time.Time   `json:"created_at"`
}

// RecordFromInsight builds the durable projection for an insight.
func RecordFromInsight(in Insight, projectID, orgID string) LiveInsightRecord {
	return LiveInsightRecord{
		SessionID:      in.SessionID,
		ProjectID:      projectID,
		OrganizationID: orgID,
		InsightID:      in.ID,
		Type:           in.Type,
		Priority:       in.Priority,
		Content:        in.Content,
		Confidence:     in.Confidence,
		AssignedTo:     in.AssignedTo,
		DueDate:        in.DueDate,
		ChunkIndex:     in.ChunkIndex,
		CreatedAt:      in.CreatedAt,
	}
}
