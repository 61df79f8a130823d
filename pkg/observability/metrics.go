// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing for the live insight pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds all Prometheus metrics for the live pipeline.
type PipelineMetrics struct {
	// Intake metrics
	ChunksReceivedTotal *prometheus.CounterVec
	ChunksRejectedTotal *prometheus.CounterVec
	ChunksDroppedTotal  *prometheus.CounterVec
	DuplicatesTotal     *prometheus.CounterVec
	IntakeQueueDepth    *prometheus.GaugeVec

	// Detection metrics
	InsightsTotal    *prometheus.CounterVec
	AnswersTotal     *prometheus.CounterVec
	ConflictsTotal   *prometheus.CounterVec
	RepetitionsTotal *prometheus.CounterVec
	BoundariesTotal  *prometheus.CounterVec

	// AI metrics
	AIOperationsTotal *prometheus.CounterVec
	AILatencySeconds  *prometheus.HistogramVec
	AITokensTotal     *prometheus.CounterVec

	// Delivery metrics
	EventsPublishedTotal *prometheus.CounterVec
	ConnectedClients     *prometheus.GaugeVec
	ChunkLatencySeconds  *prometheus.HistogramVec
}

// DefaultPipelineMetrics creates metrics on the default registerer.
func DefaultPipelineMetrics() *PipelineMetrics {
	return NewPipelineMetrics(prometheus.DefaultRegisterer)
}

// NewPipelineMetrics creates a new set of pipeline metrics.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		ChunksReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_chunks_received_total",
				Help: "Transcript chunks accepted into intake queues",
			},
			[]string{"organization_id"},
		),
		ChunksRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_chunks_rejected_total",
				Help: "Chunks rejected by the validator, by quality verdict",
			},
			[]string{"quality"},
		),
		ChunksDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_chunks_dropped_total",
				Help: "Chunks evicted from full intake queues",
			},
			[]string{"organization_id"},
		),
		DuplicatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_duplicate_chunks_total",
				Help: "Chunks short-circuited by the duplicate detector",
			},
			[]string{"organization_id"},
		),
		IntakeQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "live_intake_queue_depth",
				Help: "Current per-session intake queue depth",
			},
			[]string{"session_id"},
		),
		InsightsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_insights_total",
				Help: "Insights extracted, by type and priority",
			},
			[]string{"type", "priority"},
		),
		AnswersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_answers_total",
				Help: "Question escalation outcomes, by answer source",
			},
			[]string{"source"},
		),
		ConflictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_conflicts_total",
				Help: "Conflict alerts raised, by severity",
			},
			[]string{"severity"},
		),
		RepetitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_repetitions_total",
				Help: "Repetition alerts raised",
			},
			[]string{"organization_id"},
		),
		BoundariesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_segment_boundaries_total",
				Help: "Segment boundaries detected, by trigger",
			},
			[]string{"type"},
		),
		AIOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_ai_operations_total",
				Help: "Model and embedding calls, by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		AILatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "live_ai_latency_seconds",
				Help:    "Latency of model and embedding calls",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		AITokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_ai_tokens_total",
				Help: "Tokens consumed, by operation and direction",
			},
			[]string{"operation", "direction"},
		),
		EventsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_events_published_total",
				Help: "Events published to session channels, by event type",
			},
			[]string{"event_type"},
		),
		ConnectedClients: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "live_connected_clients",
				Help: "Currently connected WebSocket clients",
			},
			[]string{"session_id"},
		),
		ChunkLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "live_chunk_processing_seconds",
				Help:    "End-to-end processing time per chunk",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"organization_id"},
		),
	}
}
