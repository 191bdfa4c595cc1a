package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/gemini"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/neo4jdb"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/objectstore"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/openai"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/redisx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
	"github.com/andychuong/ai-study-companion-sub000/internal/temporalx"
)

type Clients struct {
	LLM         llm.Gateway
	Vector      vectorstore.Store
	Transcripts *objectstore.Loader
	Graph       *neo4jdb.Client
	Redis       *goredis.Client
	Lease       redisx.Lease
	Temporal    temporalsdkclient.Client

	closeStorage func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	gw, err := resolveLLM(ctx, log, cfg.LLM)
	if err != nil {
		return out, err
	}
	out.LLM = gw

	if out.Vector, err = resolveVectorStore(ctx, log, cfg.Vector); err != nil {
		return out, err
	}

	if out.Transcripts, out.closeStorage, err = resolveTranscriptLoader(ctx, log, cfg.Storage); err != nil {
		return out, err
	}

	if out.Graph, err = neo4jdb.New(ctx, log, cfg.Neo4j); err != nil {
		out.Close(ctx)
		return out, fmt.Errorf("init neo4j: %w", err)
	}
	if out.Graph == nil {
		log.Info("NEO4J_URI not set; mastery graph mirror disabled")
	}

	if out.Redis, err = redisx.NewClient(ctx, cfg.Redis); err != nil {
		out.Close(ctx)
		return out, fmt.Errorf("init redis: %w", err)
	}
	if out.Redis == nil {
		log.Info("REDIS_ADDR not set; engagement sweep lease is process-local")
	}
	out.Lease = redisx.NewLease(log, out.Redis, cfg.Redis.Prefix)

	if out.Temporal, err = temporalx.NewClient(ctx, log, cfg.Temporal); err != nil {
		out.Close(ctx)
		return out, fmt.Errorf("init temporal: %w", err)
	}
	return out, nil
}

// resolveLLM builds primary -> metrics -> fallback -> rate limit. Without an
// API key every call fails with llm.ErrNotConfigured.
func resolveLLM(ctx context.Context, log *logger.Logger, cfg LLMConfig) (llm.Gateway, error) {
	if strings.TrimSpace(cfg.Primary.APIKey) == "" {
		log.Warn("OPENAI_API_KEY not set; llm service not configured")
		return llm.Unconfigured{}, nil
	}
	primary, err := openai.NewClient(log, cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("init openai: %w", err)
	}

	var secondary llm.Generator
	switch {
	case strings.TrimSpace(cfg.Gemini.APIKey) != "":
		gc, err := gemini.NewClient(ctx, log, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("init gemini: %w", err)
		}
		secondary = gc
	case strings.TrimSpace(cfg.SecondaryModel) != "":
		secondary = openai.WithModel(primary, cfg.SecondaryModel)
	}
	if secondary != nil {
		log.Info("LLM fallback enabled", "primary_model", primary.Model(), "secondary_model", secondary.Model())
	} else {
		log.Info("LLM fallback disabled", "primary_model", primary.Model())
	}

	gw := llm.WithFallback(llm.Instrument(primary), secondary, log)
	if cfg.RPS > 0 {
		gw = llm.WithRateLimit(gw, cfg.RPS, cfg.Burst)
	}
	return gw, nil
}

// Close releases every client that holds a connection.
func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Graph != nil {
		_ = c.Graph.Close(ctx)
	}
	if c.closeStorage != nil {
		_ = c.closeStorage()
	}
}
