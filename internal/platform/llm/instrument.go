package llm

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
)

type instrumentedGateway struct {
	next Gateway
}

// Instrument records latency, status and a trace span for every call.
func Instrument(next Gateway) Gateway {
	if next == nil {
		return nil
	}
	return &instrumentedGateway{next: next}
}

func (g *instrumentedGateway) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "llm."+op,
		attribute.String("llm.model", g.next.Model()),
		attribute.String("llm.operation", op),
	)
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		observability.Current().ObserveLLMRequest(g.next.Model(), op, status, time.Since(start))
		observability.EndSpan(span, err)
	}
}

func (g *instrumentedGateway) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	ctx, done := g.observe(ctx, "generate_json")
	out, err := g.next.GenerateJSON(ctx, system, user, schemaName, schema)
	done(err)
	return out, err
}

func (g *instrumentedGateway) GenerateText(ctx context.Context, system, user string) (string, error) {
	ctx, done := g.observe(ctx, "generate_text")
	out, err := g.next.GenerateText(ctx, system, user)
	done(err)
	return out, err
}

func (g *instrumentedGateway) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	ctx, done := g.observe(ctx, "embed")
	out, err := g.next.Embed(ctx, inputs)
	done(err)
	return out, err
}

func (g *instrumentedGateway) Model() string { return g.next.Model() }
