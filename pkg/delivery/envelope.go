// Package delivery fans pipeline results out to connected clients. Events
// for a session are published once to the session's broker channel; every
// worker process subscribed to that channel relays them to its locally
// attached WebSocket connections.
package delivery

import (
	"encoding/json"
	"time"
)

// Event type values carried in the envelope. The mixed casing is part of
// the client contract.
const (
	EventQuestionDetected   = "QUESTION_DETECTED"
	EventActionTracked      = "ACTION_TRACKED"
	EventInsightDetected    = "INSIGHT_DETECTED"
	EventTranscriptionFinal = "TRANSCRIPTION_FINAL"
	EventMeetingSummary     = "MEETING_SUMMARY"
	EventSegmentTransition  = "SEGMENT_TRANSITION"
	EventAutoAnswer         = "auto_answer"
	EventConflictDetected   = "conflict_detected"
	EventFollowUp           = "follow_up_suggestion"
)

// Envelope is the wire format for every delivered event.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// NewEnvelope wraps data in an envelope stamped with the current time.
func NewEnvelope(eventType string, data interface{}) Envelope {
	return Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Encode marshals the envelope for transport.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
