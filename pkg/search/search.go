// Package search defines the vector similarity search collaborator and a
// shared per-session result cache so that the question-answering and
// conflict checks issued for the same chunk do not repeat the same external
// query.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Kind scopes a search to one class of indexed content.
type Kind string

const (
	KindDocument Kind = "document"
	KindDecision Kind = "decision"
	KindMeeting  Kind = "meeting"
)

// Query describes one similarity search.
type Query struct {
	Text           string
	OrganizationID string
	ProjectID      string
	SessionID      string
	Kinds          []Kind
	Limit          int
	MinScore       float64
}

// Match is one similarity search hit.
type Match struct {
	ID        string  `json:"id"`
	Kind      Kind    `json:"kind"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Source    string  `json:"source,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Searcher is the external vector similarity search collaborator. Results
// are ordered by descending score and already cut at MinScore.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Match, error)
}

// cacheKey builds a stable key for memoizing near-identical queries within
// one session. The query text is normalized so trivial rephrasings of the
// same lookup share an entry.
func cacheKey(q Query) string {
	var b strings.Builder
	b.WriteString(q.SessionID)
	b.WriteByte('|')
	b.WriteString(q.OrganizationID)
	b.WriteByte('|')
	b.WriteString(q.ProjectID)
	b.WriteByte('|')
	for _, k := range q.Kinds {
		b.WriteString(string(k))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	// Limit and MinScore change the result set, so they are part of the key.
	fmt.Fprintf(&b, "%d|%g|", q.Limit, q.MinScore)
	b.WriteString(normalize(q.Text))
	return b.String()
}

// normalize lowercases and collapses whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
