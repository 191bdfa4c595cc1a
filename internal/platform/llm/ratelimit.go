package llm

import (
	"context"
	"encoding/json"

	"golang.org/x/time/rate"
)

type limitedGateway struct {
	next    Gateway
	limiter *rate.Limiter
}

// WithRateLimit caps outbound calls at rps with the given burst. rps <= 0
// disables the limiter.
func WithRateLimit(next Gateway, rps float64, burst int) Gateway {
	if next == nil || rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &limitedGateway{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (g *limitedGateway) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.next.GenerateJSON(ctx, system, user, schemaName, schema)
}

func (g *limitedGateway) GenerateText(ctx context.Context, system, user string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.next.GenerateText(ctx, system, user)
}

func (g *limitedGateway) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.next.Embed(ctx, inputs)
}

func (g *limitedGateway) Model() string { return g.next.Model() }
