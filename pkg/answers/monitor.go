package answers

import (
	"strings"
	"sync"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// monitor is one deferred tier-3 watch: a question waiting to see whether
// the next stretch of conversation answers it.
type monitor struct {
	scope    Scope
	question meeting.Insight

	mu     sync.Mutex
	lines  []string
	timer  *time.Timer
	closed bool
}

// observe appends a chunk spoken while the watch is open.
func (m *monitor) observe(chunk meeting.TranscriptChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	line := chunk.Text
	if chunk.Speaker != "" {
		line = chunk.Speaker + ": " + chunk.Text
	}
	m.lines = append(m.lines, line)
}

// transcript returns everything captured so far.
func (m *monitor) transcript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.lines, "\n")
}

// close marks the monitor finished and stops its timer. Returns false when
// it was already closed, so resolution runs at most once even if the timer
// fires during a session cleanup.
func (m *monitor) close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
	}
	return true
}

// monitorSet indexes active monitors by session.
type monitorSet struct {
	mu      sync.Mutex
	bySess  map[string][]*monitor
	resolve func(*monitor)
}

func newMonitorSet(resolve func(*monitor)) *monitorSet {
	return &monitorSet{
		bySess:  make(map[string][]*monitor),
		resolve: resolve,
	}
}

// add registers a watch that resolves after window elapses.
func (s *monitorSet) add(scope Scope, question meeting.Insight, window time.Duration) *monitor {
	m := &monitor{scope: scope, question: question}
	m.timer = time.AfterFunc(window, func() {
		s.remove(scope.SessionID, m)
		if m.close() {
			s.resolve(m)
		}
	})

	s.mu.Lock()
	s.bySess[scope.SessionID] = append(s.bySess[scope.SessionID], m)
	s.mu.Unlock()
	return m
}

// observe feeds a chunk to every watch in its session.
func (s *monitorSet) observe(chunk meeting.TranscriptChunk) {
	s.mu.Lock()
	monitors := append([]*monitor(nil), s.bySess[chunk.SessionID]...)
	s.mu.Unlock()

	for _, m := range monitors {
		m.observe(chunk)
	}
}

// cleanupSession closes every watch in the session without resolving.
func (s *monitorSet) cleanupSession(sessionID string) {
	s.mu.Lock()
	monitors := s.bySess[sessionID]
	delete(s.bySess, sessionID)
	s.mu.Unlock()

	for _, m := range monitors {
		m.close()
	}
}

func (s *monitorSet) remove(sessionID string, target *monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	monitors := s.bySess[sessionID]
	for i, m := range monitors {
		if m == target {
			s.bySess[sessionID] = append(monitors[:i], monitors[i+1:]...)
			break
		}
	}
	if len(s.bySess[sessionID]) == 0 {
		delete(s.bySess, sessionID)
	}
}
