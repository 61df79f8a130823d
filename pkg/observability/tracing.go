package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer for live pipeline operations.
const TracerName = "live_pipeline"

// Span attribute keys
const (
	AttrSessionID  = "session_id"
	AttrChunkIndex = "chunk_index"
	AttrStage      = "stage"
	AttrModel      = "model"
	AttrEventType  = "event_type"
)

// Span names
const (
	SpanProcessChunk = "live.process_chunk"
	SpanLLMCall      = "live.llm_call"
	SpanEmbedding    = "live.embedding"
	SpanPublish      = "live.publish"
)

// Tracer provides distributed tracing for pipeline operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a pipeline tracer.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartChunkSpan starts the root span for processing one chunk.
func (t *Tracer) StartChunkSpan(ctx context.Context, sessionID string, chunkIndex int64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanProcessChunk,
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.Int64(AttrChunkIndex, chunkIndex),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage within a chunk.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("live.stage.%s", stage),
		trace.WithAttributes(attribute.String(AttrStage, stage)),
	)
}

// StartLLMSpan starts a span for a model call.
func (t *Tracer) StartLLMSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanLLMCall,
		trace.WithAttributes(attribute.String(AttrModel, model)),
	)
}

// StartEmbeddingSpan starts a span for an embedding call.
func (t *Tracer) StartEmbeddingSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanEmbedding)
}

// StartPublishSpan starts a span for publishing an event.
func (t *Tracer) StartPublishSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanPublish,
		trace.WithAttributes(attribute.String(AttrEventType, eventType)),
	)
}

// EndSpan finishes a span, recording err when non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
