package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/pkg/logging"
)

type countingSearcher struct {
	calls   int
	matches []Match
	err     error
}

func (s *countingSearcher) Search(_ context.Context, _ Query) ([]Match, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}

func TestCachedSearcher_MemoizesWithinWindow(t *testing.T) {
	inner := &countingSearcher{matches: []Match{{ID: "d1", Score: 0.9}}}
	c := NewCachedSearcher(inner, time.Minute, logging.NewNopLogger())
	ctx := context.Background()

	q := Query{SessionID: "s1", Text: "What did we decide about GraphQL?", Kinds: []Kind{KindDocument}}

	first, err := c.Search(ctx, q)
	require.NoError(t, err)
	second, err := c.Search(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second lookup must be served from cache")
}

func TestCachedSearcher_NormalizesQueryText(t *testing.T) {
	inner := &countingSearcher{}
	c := NewCachedSearcher(inner, time.Minute, logging.NewNopLogger())
	ctx := context.Background()

	_, _ = c.Search(ctx, Query{SessionID: "s1", Text: "What did we DECIDE?"})
	_, _ = c.Search(ctx, Query{SessionID: "s1", Text: "  what did we decide?  "})

	assert.Equal(t, 1, inner.calls)
}

func TestCachedSearcher_DistinctScopesDistinctEntries(t *testing.T) {
	inner := &countingSearcher{}
	c := NewCachedSearcher(inner, time.Minute, logging.NewNopLogger())
	ctx := context.Background()

	_, _ = c.Search(ctx, Query{SessionID: "s1", Text: "q", Kinds: []Kind{KindDocument}})
	_, _ = c.Search(ctx, Query{SessionID: "s1", Text: "q", Kinds: []Kind{KindDecision}})
	_, _ = c.Search(ctx, Query{SessionID: "s2", Text: "q", Kinds: []Kind{KindDocument}})

	assert.Equal(t, 3, inner.calls)
}

func TestCachedSearcher_DistinctCutoffsDistinctEntries(t *testing.T) {
	inner := &countingSearcher{}
	c := NewCachedSearcher(inner, time.Minute, logging.NewNopLogger())
	ctx := context.Background()

	_, _ = c.Search(ctx, Query{SessionID: "s1", Text: "q", Limit: 3, MinScore: 0.6})
	_, _ = c.Search(ctx, Query{SessionID: "s1", Text: "q", Limit: 3, MinScore: 0.8})
	_, _ = c.Search(ctx, Query{SessionID: "s1", Text: "q", Limit: 10, MinScore: 0.6})

	assert.Equal(t, 3, inner.calls, "limit and cutoff changes must not alias to one cached result")
}

func TestCachedSearcher_ErrorsNotCached(t *testing.T) {
	inner := &countingSearcher{err: errors.New("search down")}
	c := NewCachedSearcher(inner, time.Minute, logging.NewNopLogger())
	ctx := context.Background()

	q := Query{SessionID: "s1", Text: "q"}
	_, err := c.Search(ctx, q)
	require.Error(t, err)

	inner.err = nil
	inner.matches = []Match{{ID: "d1"}}
	matches, err := c.Search(ctx, q)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedSearcher_CleanupSession(t *testing.T) {
	inner := &countingSearcher{}
	c := NewCachedSearcher(inner, time.Minute, logging.NewNopLogger())
	ctx := context.Background()

	q := Query{SessionID: "s1", Text: "q"}
	_, _ = c.Search(ctx, q)
	c.CleanupSession("s1")
	_, _ = c.Search(ctx, q)

	assert.Equal(t, 2, inner.calls, "cleanup must evict the session's entries")
}
