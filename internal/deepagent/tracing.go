package deepagent

import (
	"context"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func startInvokeSpan(ctx context.Context, threadID string, subAgents int) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "agent.invoke")
	span.SetAttributes(
		attribute.String("thread.id", threadID),
		attribute.Int("agent.subagents", subAgents),
	)
	return ctx, span
}

func endInvokeSpan(span trace.Span, out []llm.Message, err error) {
	span.SetAttributes(attribute.Int("thread.messages", len(out)))
	tracer := telemetry.GetTracer()
	if tracer.Debug() && len(out) > 0 {
		span.SetAttributes(attribute.String("agent.output", truncate(out[len(out)-1].Content, 2000)))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

func startSubAgentSpan(ctx context.Context, name string, tools int) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "subagent."+name)
	span.SetAttributes(
		attribute.String("subagent.name", name),
		attribute.Int("subagent.tools", tools),
	)
	return ctx, span
}

func endSubAgentSpan(span trace.Span, output string, err error) {
	tracer := telemetry.GetTracer()
	if tracer.Debug() && output != "" {
		span.SetAttributes(attribute.String("subagent.output", truncate(output, 2000)))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
