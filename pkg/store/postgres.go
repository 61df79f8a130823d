package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// PostgresStore implements InsightStore on PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveInsight stores one insight record.
func (s *PostgresStore) SaveInsight(ctx context.Context, rec meeting.LiveInsightRecord) (meeting.LiveInsightRecord, error) {
	query := `
		INSERT INTO live_insights (
			session_id, project_id, organization_id, insight_id,
			insight_type, priority, content, confidence,
			assigned_to, due_date, chunk_index, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		RETURNING id
	`

	err := s.db.QueryRow(ctx, query,
		rec.SessionID,
		nullableString(rec.ProjectID),
		nullableString(rec.OrganizationID),
		rec.InsightID,
		string(rec.Type),
		string(rec.Priority),
		rec.Content,
		rec.Confidence,
		nullableString(rec.AssignedTo),
		nullableString(rec.DueDate),
		rec.ChunkIndex,
		rec.CreatedAt,
	).Scan(&rec.RecordID)
	if err != nil {
		return rec, fmt.Errorf("saving insight: %w", err)
	}
	return rec, nil
}

// ListSessionInsights returns the session's stored insights in chunk order.
func (s *PostgresStore) ListSessionInsights(ctx context.Context, sessionID string) ([]meeting.LiveInsightRecord, error) {
	query := `
		SELECT id, session_id, COALESCE(project_id, ''), COALESCE(organization_id, ''),
			insight_id, insight_type, priority, content, confidence,
			COALESCE(assigned_to, ''), COALESCE(due_date, ''), chunk_index, created_at
		FROM live_insights
		WHERE session_id = $1
		ORDER BY chunk_index, id
	`

	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing insights: %w", err)
	}
	defer rows.Close()

	var out []meeting.LiveInsightRecord
	for rows.Next() {
		var rec meeting.LiveInsightRecord
		var insightType, priority string
		if err := rows.Scan(
			&rec.RecordID, &rec.SessionID, &rec.ProjectID, &rec.OrganizationID,
			&rec.InsightID, &insightType, &priority, &rec.Content, &rec.Confidence,
			&rec.AssignedTo, &rec.DueDate, &rec.ChunkIndex, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning insight: %w", err)
		}
		rec.Type = meeting.InsightType(insightType)
		rec.Priority = meeting.Priority(priority)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading insights: %w", err)
	}
	return out, nil
}

// nullableString maps "" to NULL.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ InsightStore = (*PostgresStore)(nil)
