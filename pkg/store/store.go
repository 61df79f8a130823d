// Package store persists finalized insights. Persistence is best-effort
// from the pipeline's point of view: a storage failure is logged and the
// event is still delivered live.
package store

import (
	"context"

	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// InsightStore accepts finalized insights for durable storage.
type InsightStore interface {
	// SaveInsight stores a record and returns it with RecordID assigned.
	SaveInsight(ctx context.Context, rec meeting.LiveInsightRecord) (meeting.LiveInsightRecord, error)

	// ListSessionInsights returns all stored insights for a session in
	// chunk order.
	ListSessionInsights(ctx context.Context, sessionID string) ([]meeting.LiveInsightRecord, error)
}

// NopStore discards everything. Used when no database is configured.
type NopStore struct{}

func (NopStore) SaveInsight(_ context.Context, rec meeting.LiveInsightRecord) (meeting.LiveInsightRecord, error) {
	return rec, nil
}

func (NopStore) ListSessionInsights(context.Context, string) ([]meeting.LiveInsightRecord, error) {
	return nil, nil
}

var _ InsightStore = NopStore{}
