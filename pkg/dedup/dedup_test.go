package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// fakeEmbedder returns canned vectors per text, with a distinct fallback for
// unknown inputs.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{1, 0, 0, 0}, nil
}

func chunk(index int64, text string) meeting.TranscriptChunk {
	return meeting.TranscriptChunk{
		ID:        "c",
		SessionID: "s1",
		Text:      text,
		Index:     index,
		Timestamp: time.Now(),
	}
}

func TestIsDuplicate_FirstChunkNeverDuplicate(t *testing.T) {
	d := New(DefaultConfig(), &fakeEmbedder{}, logging.NewNopLogger())

	dup, sim, err := d.IsDuplicate(context.Background(), "s1", chunk(0, "we ship friday"))
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, 0.0, sim)
}

func TestIsDuplicate_IdenticalChunkFlagged(t *testing.T) {
	d := New(DefaultConfig(), &fakeEmbedder{}, logging.NewNopLogger())
	ctx := context.Background()

	_, _, err := d.IsDuplicate(ctx, "s1", chunk(0, "we ship friday"))
	require.NoError(t, err)

	dup, sim, err := d.IsDuplicate(ctx, "s1", chunk(1, "we ship friday"))
	require.NoError(t, err)
	assert.True(t, dup)
	assert.GreaterOrEqual(t, sim, DefaultConfig().Threshold)
}

func TestIsDuplicate_DistinctChunksPass(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"topic a": {1, 0, 0, 0},
		"topic b": {0, 1, 0, 0},
	}}
	d := New(DefaultConfig(), emb, logging.NewNopLogger())
	ctx := context.Background()

	_, _, err := d.IsDuplicate(ctx, "s1", chunk(0, "topic a"))
	require.NoError(t, err)

	dup, sim, err := d.IsDuplicate(ctx, "s1", chunk(1, "topic b"))
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Less(t, sim, DefaultConfig().Threshold)
}

func TestIsDuplicate_AlwaysAppendsHistory(t *testing.T) {
	// Three identical chunks: the third must match even though the second
	// was already flagged, because history grows on every call.
	d := New(DefaultConfig(), &fakeEmbedder{}, logging.NewNopLogger())
	ctx := context.Background()

	_, _, _ = d.IsDuplicate(ctx, "s1", chunk(0, "same"))
	dup2, _, _ := d.IsDuplicate(ctx, "s1", chunk(1, "same"))
	dup3, _, _ := d.IsDuplicate(ctx, "s1", chunk(2, "same"))

	assert.True(t, dup2)
	assert.True(t, dup3)
}

func TestIsDuplicate_SessionsAreIsolated(t *testing.T) {
	d := New(DefaultConfig(), &fakeEmbedder{}, logging.NewNopLogger())
	ctx := context.Background()

	_, _, err := d.IsDuplicate(ctx, "s1", chunk(0, "same"))
	require.NoError(t, err)

	dup, _, err := d.IsDuplicate(ctx, "s2", chunk(0, "same"))
	require.NoError(t, err)
	assert.False(t, dup, "history must not leak across sessions")
}

func TestIsDuplicate_WindowBounded(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"first":  {0, 0, 0, 1},
		"other0": {0, 1, 0, 0}, "other1": {0, 1, 0, 0}, "other2": {0, 1, 0, 0},
	}}
	cfg := Config{Threshold: 0.90, WindowSize: 2, MaxAge: time.Hour}
	d := New(cfg, emb, logging.NewNopLogger())
	ctx := context.Background()

	_, _, _ = d.IsDuplicate(ctx, "s1", chunk(0, "first"))
	_, _, _ = d.IsDuplicate(ctx, "s1", chunk(1, "other0"))
	_, _, _ = d.IsDuplicate(ctx, "s1", chunk(2, "other1"))

	// "first" has been evicted from the 2-entry window.
	dup, _, err := d.IsDuplicate(ctx, "s1", chunk(3, "first"))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestIsDuplicate_EmbedFailureSurfaces(t *testing.T) {
	d := New(DefaultConfig(), &fakeEmbedder{err: errors.New("service down")}, logging.NewNopLogger())

	_, _, err := d.IsDuplicate(context.Background(), "s1", chunk(0, "text"))
	assert.Error(t, err)
}

func TestCleanupSession(t *testing.T) {
	d := New(DefaultConfig(), &fakeEmbedder{}, logging.NewNopLogger())
	ctx := context.Background()

	_, _, _ = d.IsDuplicate(ctx, "s1", chunk(0, "same"))
	d.CleanupSession("s1")

	dup, _, err := d.IsDuplicate(ctx, "s1", chunk(1, "same"))
	require.NoError(t, err)
	assert.False(t, dup, "cleanup must wipe history")
}
