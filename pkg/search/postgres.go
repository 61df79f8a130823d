package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/penf-live/pkg/embedding"
)

// PostgresSearcher implements Searcher over a pgvector-indexed content
// table. It is the reference implementation of the external similarity
// search collaborator; deployments with a dedicated search service swap in
// their own Searcher.
type PostgresSearcher struct {
	db       *pgxpool.Pool
	embedder embedding.Client
}

// NewPostgresSearcher creates a searcher over the given pool.
func NewPostgresSearcher(db *pgxpool.Pool, embedder embedding.Client) *PostgresSearcher {
	return &PostgresSearcher{db: db, embedder: embedder}
}

// Search embeds the query text and runs a cosine similarity scan scoped to
// the query's organization and project.
func (s *PostgresSearcher) Search(ctx context.Context, q Query) ([]Match, error) {
	vec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	sql, args := buildSearchSQL(q, vectorLiteral(vec), limit)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Kind, &m.Content, &m.Source, &m.Timestamp, &m.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// buildSearchSQL assembles the scoped similarity query. pgvector's <=>
// operator is cosine distance; similarity is 1 - distance.
func buildSearchSQL(q Query, vector string, limit int) (string, []interface{}) {
	var b strings.Builder
	args := []interface{}{vector}

	b.WriteString(`
		SELECT id::text, kind, content, COALESCE(source, ''),
		       COALESCE(to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"'), ''),
		       1 - (embedding <=> $1::vector) AS score
		FROM indexed_content
		WHERE 1=1`)

	if q.OrganizationID != "" {
		args = append(args, q.OrganizationID)
		fmt.Fprintf(&b, " AND organization_id = $%d", len(args))
	}
	if q.ProjectID != "" {
		args = append(args, q.ProjectID)
		fmt.Fprintf(&b, " AND project_id = $%d", len(args))
	}
	if len(q.Kinds) > 0 {
		kinds := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, kinds)
		fmt.Fprintf(&b, " AND kind = ANY($%d)", len(args))
	}
	if q.MinScore > 0 {
		args = append(args, q.MinScore)
		fmt.Fprintf(&b, " AND 1 - (embedding <=> $1::vector) >= $%d", len(args))
	}

	args = append(args, limit)
	fmt.Fprintf(&b, " ORDER BY embedding <=> $1::vector LIMIT $%d", len(args))
	return b.String(), args
}

// vectorLiteral renders an embedding in pgvector's input format.
func vectorLiteral(vec []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// NopSearcher returns no matches. Used when no content index is configured;
// question answering then skips straight past tier 1 and conflict checks
// find no candidates.
type NopSearcher struct{}

func (NopSearcher) Search(context.Context, Query) ([]Match, error) {
	return nil, nil
}

var _ Searcher = (*PostgresSearcher)(nil)
var _ Searcher = NopSearcher{}
