package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/httpx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type fallbackGateway struct {
	primary   Gateway
	secondary Generator
	log       *logger.Logger
}

// WithFallback retries a generation call once on secondary when primary fails
// with a rate-limit or server error. Embeddings always go to primary so every
// stored vector shares one dimension. A nil secondary returns primary unchanged.
func WithFallback(primary Gateway, secondary Generator, log *logger.Logger) Gateway {
	if primary == nil || secondary == nil {
		return primary
	}
	return &fallbackGateway{
		primary:   primary,
		secondary: secondary,
		log:       log.With("service", "LLMFallback"),
	}
}

func shouldFallback(err error) bool {
	if err == nil || errors.Is(err, ErrNotConfigured) {
		return false
	}
	return httpx.IsRateLimitOrServerError(err)
}

func (g *fallbackGateway) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	out, err := g.primary.GenerateJSON(ctx, system, user, schemaName, schema)
	if !shouldFallback(err) || ctx.Err() != nil {
		return out, err
	}
	g.log.Warn("primary model failed; retrying on secondary",
		"operation", "generate_json",
		"schema", schemaName,
		"primary", g.primary.Model(),
		"secondary", g.secondary.Model(),
		"status", httpx.StatusCode(err),
	)
	out, err2 := g.secondary.GenerateJSON(ctx, system, user, schemaName, schema)
	observability.Current().IncLLMFallback("generate_json", outcome(err2))
	if err2 != nil {
		return nil, errors.Join(err, err2)
	}
	return out, nil
}

func (g *fallbackGateway) GenerateText(ctx context.Context, system, user string) (string, error) {
	out, err := g.primary.GenerateText(ctx, system, user)
	if !shouldFallback(err) || ctx.Err() != nil {
		return out, err
	}
	g.log.Warn("primary model failed; retrying on secondary",
		"operation", "generate_text",
		"primary", g.primary.Model(),
		"secondary", g.secondary.Model(),
		"status", httpx.StatusCode(err),
	)
	out, err2 := g.secondary.GenerateText(ctx, system, user)
	observability.Current().IncLLMFallback("generate_text", outcome(err2))
	if err2 != nil {
		return "", errors.Join(err, err2)
	}
	return out, nil
}

func (g *fallbackGateway) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return g.primary.Embed(ctx, inputs)
}

func (g *fallbackGateway) Model() string { return g.primary.Model() }

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
