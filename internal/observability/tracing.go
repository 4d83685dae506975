package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this library's spans. Exporter and sampler wiring
// belong to the embedding service; the core only emits through the global
// tracer provider.
const tracerName = "github.com/projectdavid/orchestrator"

// StartTurn opens a span covering one orchestrator turn.
func StartTurn(ctx context.Context, runID string, turn int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "orchestrator.turn",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.turn", turn),
		))
}

// StartProviderStream opens a span covering one upstream provider stream.
func StartProviderStream(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "provider.stream",
		trace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
		))
}

// StartTool opens a span covering one tool execution.
func StartTool(ctx context.Context, tool, toolCallID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool.execute",
		trace.WithAttributes(
			attribute.String("tool.name", tool),
			attribute.String("tool.call_id", toolCallID),
		))
}

// EndSpan closes a span, recording err when non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
