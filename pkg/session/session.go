// Package session holds per-meeting state: chunk ordering, the rolling
// context window, enabled insight categories, and the bounded intake queue
// feeding the processing loop.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// Config controls per-session buffers.
type Config struct {
	// ContextWindow is how many recent chunks feed extraction prompts.
	ContextWindow int
	// IntakeCapacity bounds the per-session intake queue. When transcription
	// outruns processing the OLDEST queued chunk is dropped: the freshest
	// speech is the most valuable to a live audience.
	IntakeCapacity int
}

// DefaultConfig returns the production session settings.
func DefaultConfig() Config {
	return Config{
		ContextWindow:  5,
		IntakeCapacity: 64,
	}
}

// Options describe a session at start.
type Options struct {
	OrganizationID string
	ProjectID      string
	UserID         string
	EnabledTypes   []meeting.InsightType
}

// ErrSessionEnded is returned when a chunk arrives for a finished session.
var ErrSessionEnded = errors.New("session has ended")

// Session is the live state for one meeting.
type Session struct {
	ID        string
	StartedAt time.Time

	opts   Options
	cfg    Config
	intake *intakeQueue

	mu        sync.Mutex
	nextIndex int64
	context   []meeting.TranscriptChunk
	ended     bool
}

// NextIndex allocates the next chunk index for the session.
func (s *Session) NextIndex() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.nextIndex
	s.nextIndex++
	return i
}

// AppendContext adds a processed chunk to the rolling context window.
func (s *Session) AppendContext(chunk meeting.TranscriptChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = append(s.context, chunk)
	if len(s.context) > s.cfg.ContextWindow {
		s.context = s.context[len(s.context)-s.cfg.ContextWindow:]
	}
}

// RecentContext returns a copy of the rolling context window.
func (s *Session) RecentContext() []meeting.TranscriptChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]meeting.TranscriptChunk(nil), s.context...)
}

// EnabledTypes returns the insight categories this session extracts.
func (s *Session) EnabledTypes() []meeting.InsightType {
	if len(s.opts.EnabledTypes) == 0 {
		return meeting.AllInsightTypes
	}
	return s.opts.EnabledTypes
}

// OrganizationID returns the owning organization.
func (s *Session) OrganizationID() string { return s.opts.OrganizationID }

// ProjectID returns the owning project.
func (s *Session) ProjectID() string { return s.opts.ProjectID }

// Enqueue adds a chunk to the intake queue. Reports how many older chunks
// were dropped to make room.
func (s *Session) Enqueue(chunk meeting.TranscriptChunk) (dropped int, err error) {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return 0, ErrSessionEnded
	}
	return s.intake.push(chunk), nil
}

// Dequeue removes the next chunk, blocking until one is available or the
// session ends. ok is false once the session is over and the queue drained.
func (s *Session) Dequeue() (meeting.TranscriptChunk, bool) {
	return s.intake.pop()
}

// QueueDepth reports how many chunks are waiting.
func (s *Session) QueueDepth() int {
	return s.intake.depth()
}

// end marks the session finished and wakes the processing loop.
func (s *Session) end() {
	s.mu.Lock()
	already := s.ended
	s.ended = true
	s.mu.Unlock()
	if !already {
		s.intake.close()
	}
}

// tombstoneTTL is how long an ended session ID keeps rejecting late chunks
// before the ID may be reused for a new meeting.
const tombstoneTTL = time.Hour

// Tracker is the arena of live sessions.
type Tracker struct {
	cfg    Config
	logger logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	ended    map[string]time.Time
}

// NewTracker creates a session tracker.
func NewTracker(cfg Config, logger logging.Logger) *Tracker {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultConfig().ContextWindow
	}
	if cfg.IntakeCapacity <= 0 {
		cfg.IntakeCapacity = DefaultConfig().IntakeCapacity
	}
	return &Tracker{
		cfg:      cfg,
		logger:   logger.With(logging.F("component", "session_tracker")),
		now:      time.Now,
		sessions: make(map[string]*Session),
		ended:    make(map[string]time.Time),
	}
}

// Start registers a session. Starting an already-live session returns the
// existing one; reconnects must not reset state. A recently ended session ID
// is tombstoned: a chunk arriving after the explicit end is rejected with
// ErrSessionEnded rather than silently resurrecting the meeting.
func (t *Tracker) Start(sessionID string, opts Options) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[sessionID]; ok {
		return s, nil
	}

	now := t.now()
	for id, at := range t.ended {
		if now.Sub(at) > tombstoneTTL {
			delete(t.ended, id)
		}
	}
	if _, ok := t.ended[sessionID]; ok {
		return nil, ErrSessionEnded
	}

	s := &Session{
		ID:        sessionID,
		StartedAt: now,
		opts:      opts,
		cfg:       t.cfg,
		intake:    newIntakeQueue(t.cfg.IntakeCapacity),
	}
	t.sessions[sessionID] = s
	t.logger.Info("session started", logging.F("session_id", sessionID))
	return s, nil
}

// Get returns a live session.
func (t *Tracker) Get(sessionID string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	return s, ok
}

// Alive reports whether the session is still live. Detection results
// arriving after the session ended are discarded against this check.
func (t *Tracker) Alive(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[sessionID]
	return ok
}

// End removes a session and wakes its processing loop. Returns the session
// so the caller can run component cleanup, or false if it was not live.
func (t *Tracker) End(sessionID string) (*Session, bool) {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	if ok {
		t.ended[sessionID] = t.now()
	}
	t.mu.Unlock()

	if !ok {
		return nil, false
	}
	s.end()
	t.logger.Info("session ended", logging.F("session_id", sessionID))
	return s, true
}

// LiveSessions returns the IDs of all live sessions.
func (t *Tracker) LiveSessions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		out = append(out, id)
	}
	return out
}
