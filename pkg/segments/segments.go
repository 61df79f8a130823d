// Package segments detects meeting segment boundaries from elapsed time,
// silence gaps, and topic-transition phrases. Detection is purely local
// state and pattern matching; no external calls.
package segments

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// Config controls boundary detection.
type Config struct {
	// Interval is the elapsed time since the last boundary that forces a
	// time-based boundary.
	Interval time.Duration
	// SilenceThreshold is the transcript gap that counts as a long pause.
	SilenceThreshold time.Duration
	// CooldownBucket suppresses repeat alerts for the same condition within
	// one bucket of this width.
	CooldownBucket time.Duration
}

// DefaultConfig returns the production segment detection settings.
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Minute,
		SilenceThreshold: 10 * time.Second,
		CooldownBucket:   15 * time.Minute,
	}
}

// transitionPhrases are matched case-insensitively as substrings of a chunk.
var transitionPhrases = []string{
	"let's move on",
	"moving on",
	"next topic",
	"next item",
	"next agenda item",
	"switching gears",
	"that wraps up",
	"to summarize",
	"any other business",
	"last thing on the agenda",
}

// sessionTimers is the per-session boundary state.
type sessionTimers struct {
	start        time.Time
	lastBoundary time.Time
	lastActivity time.Time
	fired        map[string]bool
}

// Detector tracks per-session timers and emits segment boundaries.
type Detector struct {
	cfg    Config
	logger logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionTimers
}

// NewDetector creates a segment boundary detector.
func NewDetector(cfg Config, logger logging.Logger) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultConfig().SilenceThreshold
	}
	if cfg.CooldownBucket <= 0 {
		cfg.CooldownBucket = DefaultConfig().CooldownBucket
	}
	return &Detector{
		cfg:      cfg,
		logger:   logger.With(logging.F("component", "segments")),
		now:      time.Now,
		sessions: make(map[string]*sessionTimers),
	}
}

// Observe processes a new transcript chunk and returns a boundary if the
// chunk reveals one: a long silence since the previous activity, or a
// transition phrase in the text. At most one boundary is returned per
// chunk; silence wins over phrasing because it happened first.
func (d *Detector) Observe(chunk meeting.TranscriptChunk) *meeting.SegmentBoundary {
	now := d.now()

	d.mu.Lock()
	s := d.session(chunk.SessionID, now)
	gap := now.Sub(s.lastActivity)
	s.lastActivity = now

	var b *meeting.SegmentBoundary
	if gap >= d.cfg.SilenceThreshold {
		b = d.boundaryLocked(s, now, meeting.BoundaryLongPause,
			fmt.Sprintf("silence of %s", gap.Round(time.Second)))
	}
	if b == nil {
		if phrase := matchTransition(chunk.Text); phrase != "" {
			b = d.boundaryLocked(s, now, meeting.BoundaryTransitionPhrase,
				fmt.Sprintf("transition phrase %q", phrase))
		}
	}
	d.mu.Unlock()

	if b != nil {
		d.logger.Debug("segment boundary",
			logging.F("session_id", chunk.SessionID),
			logging.F("type", string(b.Type)))
	}
	return b
}

// Tick runs the periodic time-based check for a session. Returns a boundary
// when the configured interval has elapsed since the last one.
func (d *Detector) Tick(sessionID string) *meeting.SegmentBoundary {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.session(sessionID, now)
	if now.Sub(s.lastBoundary) < d.cfg.Interval {
		return nil
	}
	return d.boundaryLocked(s, now, meeting.BoundaryTimeInterval,
		fmt.Sprintf("%s elapsed since last boundary", d.cfg.Interval))
}

// End emits the terminal boundary for a session and clears its state. The
// terminal boundary bypasses cooldowns; a meeting end is always reported.
func (d *Detector) End(sessionID string) *meeting.SegmentBoundary {
	d.mu.Lock()
	delete(d.sessions, sessionID)
	d.mu.Unlock()

	return &meeting.SegmentBoundary{
		Type:        meeting.BoundaryMeetingEnd,
		Description: "meeting ended",
	}
}

// CleanupSession drops session timer state without emitting a boundary.
func (d *Detector) CleanupSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, sessionID)
}

// session returns the timers for sessionID, creating them on first sight.
// Caller holds d.mu.
func (d *Detector) session(sessionID string, now time.Time) *sessionTimers {
	s, ok := d.sessions[sessionID]
	if !ok {
		s = &sessionTimers{
			start:        now,
			lastBoundary: now,
			lastActivity: now,
			fired:        make(map[string]bool),
		}
		d.sessions[sessionID] = s
	}
	return s
}

// boundaryLocked applies the cooldown and, if clear, records the boundary
// and resets the last-boundary timer. Caller holds d.mu.
func (d *Detector) boundaryLocked(s *sessionTimers, now time.Time, t meeting.BoundaryType, desc string) *meeting.SegmentBoundary {
	key := cooldownKey(t, now, d.cfg.CooldownBucket)
	if s.fired[key] {
		return nil
	}
	s.fired[key] = true
	s.lastBoundary = now
	return &meeting.SegmentBoundary{Type: t, Description: desc}
}

// cooldownKey buckets alerts per condition per time window, so the same
// condition re-alerts once the window rolls over.
func cooldownKey(t meeting.BoundaryType, now time.Time, bucket time.Duration) string {
	return fmt.Sprintf("%s|%d", t, now.UnixNano()/int64(bucket))
}

// matchTransition returns the first transition phrase found in text, or "".
func matchTransition(text string) string {
	lower := strings.ToLower(text)
	for _, p := range transitionPhrases {
		if strings.Contains(lower, p) {
			return p
		}
	}
	return ""
}
