package segments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// fakeClock lets tests drive the detector's sense of time.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDetector(cfg Config) (*Detector, *fakeClock) {
	d := NewDetector(cfg, logging.NewNopLogger())
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	d.now = clock.now
	return d, clock
}

func chunk(text string) meeting.TranscriptChunk {
	return meeting.TranscriptChunk{SessionID: "s1", Text: text}
}

func TestObserve_TransitionPhrase(t *testing.T) {
	d, _ := newTestDetector(DefaultConfig())

	b := d.Observe(chunk("okay, let's move on to the roadmap"))
	require.NotNil(t, b)
	assert.Equal(t, meeting.BoundaryTransitionPhrase, b.Type)
	assert.Contains(t, b.Description, "let's move on")
}

func TestObserve_PlainSpeechNoBoundary(t *testing.T) {
	d, clock := newTestDetector(DefaultConfig())

	d.Observe(chunk("first point about the launch"))
	clock.advance(2 * time.Second)
	b := d.Observe(chunk("second point about the launch"))
	assert.Nil(t, b)
}

func TestObserve_LongPause(t *testing.T) {
	d, clock := newTestDetector(DefaultConfig())

	d.Observe(chunk("before the pause"))
	clock.advance(30 * time.Second)
	b := d.Observe(chunk("after the pause"))
	require.NotNil(t, b)
	assert.Equal(t, meeting.BoundaryLongPause, b.Type)
}

func TestObserve_ShortGapIsNotAPause(t *testing.T) {
	d, clock := newTestDetector(DefaultConfig())

	d.Observe(chunk("a"))
	clock.advance(5 * time.Second)
	assert.Nil(t, d.Observe(chunk("b")))
}

func TestTick_TimeIntervalBoundary(t *testing.T) {
	d, clock := newTestDetector(DefaultConfig())

	d.Observe(chunk("start of meeting"))
	assert.Nil(t, d.Tick("s1"), "interval not yet elapsed")

	clock.advance(11 * time.Minute)
	b := d.Tick("s1")
	require.NotNil(t, b)
	assert.Equal(t, meeting.BoundaryTimeInterval, b.Type)
}

func TestTick_BoundaryResetsIntervalTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SilenceThreshold = time.Hour // keep pause detection out of this test
	d, clock := newTestDetector(cfg)

	d.Observe(chunk("start"))
	clock.advance(9 * time.Minute)
	b := d.Observe(chunk("alright, next topic: hiring"))
	require.NotNil(t, b, "transition phrase fires a boundary")

	clock.advance(2 * time.Minute)
	assert.Nil(t, d.Tick("s1"), "interval counts from the phrase boundary, not session start")
}

func TestCooldown_SameConditionSuppressedWithinBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SilenceThreshold = time.Hour // keep pause detection out of this test
	d, clock := newTestDetector(cfg)

	b1 := d.Observe(chunk("let's move on"))
	require.NotNil(t, b1)

	clock.advance(time.Minute)
	b2 := d.Observe(chunk("moving on again"))
	assert.Nil(t, b2, "same condition within the cooldown bucket must not re-alert")

	clock.advance(16 * time.Minute)
	b3 := d.Observe(chunk("let's move on once more"))
	assert.NotNil(t, b3, "a new cooldown bucket re-enables the alert")
}

func TestEnd_TerminalBoundaryAlways(t *testing.T) {
	d, _ := newTestDetector(DefaultConfig())

	d.Observe(chunk("let's move on"))
	b := d.End("s1")
	require.NotNil(t, b)
	assert.Equal(t, meeting.BoundaryMeetingEnd, b.Type)

	// State is gone: a new chunk starts fresh timers.
	assert.Nil(t, d.Tick("s1"))
}

func TestSessionsIsolated(t *testing.T) {
	d, _ := newTestDetector(DefaultConfig())

	b := d.Observe(meeting.TranscriptChunk{SessionID: "a", Text: "let's move on"})
	require.NotNil(t, b)
	b2 := d.Observe(meeting.TranscriptChunk{SessionID: "b", Text: "let's move on"})
	assert.NotNil(t, b2, "cooldowns are per session")
}
