// Package dedup suppresses near-duplicate transcript chunks before any
// model call is made. It is the pipeline's primary cost-control gate.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/embedding"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// Config holds the duplicate detection thresholds.
type Config struct {
	// Threshold is the cosine similarity at or above which a chunk is a
	// duplicate.
	Threshold float64

	// WindowSize bounds how many recent chunk embeddings are kept per session.
	WindowSize int

	// MaxAge evicts history entries older than this; a phrase repeated after
	// a long gap is discussion, not transcription noise.
	MaxAge time.Duration
}

// DefaultConfig returns the default duplicate detection settings.
func DefaultConfig() Config {
	return Config{
		Threshold:  0.90,
		WindowSize: 10,
		MaxAge:     5 * time.Minute,
	}
}

type historyEntry struct {
	vector  []float64
	index   int64
	addedAt time.Time
}

type sessionHistory struct {
	entries []historyEntry
}

// Detector flags chunks that are near-duplicates of recent chunks in the
// same session. History is per session and wiped on cleanup.
type Detector struct {
	cfg      Config
	embedder embedding.Client
	logger   logging.Logger

	mu       sync.Mutex
	sessions map[string]*sessionHistory
}

// New creates a duplicate detector.
func New(cfg Config, embedder embedding.Client, logger logging.Logger) *Detector {
	if cfg.Threshold == 0 {
		cfg = DefaultConfig()
	}
	return &Detector{
		cfg:      cfg,
		embedder: embedder,
		logger:   logger.With(logging.F("component", "dedup")),
		sessions: make(map[string]*sessionHistory),
	}
}

// IsDuplicate embeds the chunk and compares it against the session's recent
// history. The chunk's embedding is always appended to history, duplicate or
// not, so repeated near-identical chunks keep matching the most recent
// occurrence. On embedding failure the caller should treat the chunk as
// unique and continue.
func (d *Detector) IsDuplicate(ctx context.Context, sessionID string, chunk meeting.TranscriptChunk) (bool, float64, error) {
	vector, err := d.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return false, 0, fmt.Errorf("dedup embed: %w", err)
	}

	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	hist := d.sessions[sessionID]
	if hist == nil {
		hist = &sessionHistory{}
		d.sessions[sessionID] = hist
	}
	hist.prune(now, d.cfg)

	best := 0.0
	for _, entry := range hist.entries {
		if sim := embedding.Cosine(vector, entry.vector); sim > best {
			best = sim
		}
	}

	hist.entries = append(hist.entries, historyEntry{
		vector:  vector,
		index:   chunk.Index,
		addedAt: now,
	})
	if len(hist.entries) > d.cfg.WindowSize {
		hist.entries = hist.entries[len(hist.entries)-d.cfg.WindowSize:]
	}

	isDup := best >= d.cfg.Threshold
	if isDup {
		d.logger.Debug("duplicate chunk suppressed",
			logging.F("session_id", sessionID),
			logging.F("chunk_index", chunk.Index),
			logging.F("similarity", best))
	}
	return isDup, best, nil
}

// CleanupSession wipes all history for a session.
func (d *Detector) CleanupSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, sessionID)
}

// prune drops entries past MaxAge.
func (h *sessionHistory) prune(now time.Time, cfg Config) {
	if cfg.MaxAge <= 0 {
		return
	}
	cutoff := now.Add(-cfg.MaxAge)
	keep := h.entries[:0]
	for _, e := range h.entries {
		if e.addedAt.After(cutoff) {
			keep = append(keep, e)
		}
	}
	h.entries = keep
}
