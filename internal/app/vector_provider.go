package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/pinecone"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/qdrant"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
)

var (
	newPineconeClient      = pinecone.NewClient
	newPineconeVectorStore = pinecone.NewVectorStore
	newQdrantVectorStore   = qdrant.NewVectorStore
)

const (
	VectorProviderQdrant   = "qdrant"
	VectorProviderPinecone = "pinecone"
	VectorProviderNone     = "none"
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider     VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorInvalidQdrantURL    VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl   VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorMissingQdrantVector VectorProviderBootstrapErrorCode = "missing_qdrant_vector_dim"
	VectorProviderBootstrapErrorInvalidQdrantVector VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorQdrantConfigFailed  VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorConnectFailed       VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed  VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore builds the configured provider. A provider without its
// endpoint or key degrades to vectorstore.Unconfigured; a provider that is
// configured but cannot start is an error.
func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg VectorConfig) (vectorstore.Store, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = VectorProviderQdrant
	}

	switch provider {
	case VectorProviderNone:
		log.Warn("Vector index not configured; session indexing will fail and retrieval returns no matches")
		return vectorstore.Unconfigured{}, nil

	case VectorProviderQdrant:
		if strings.TrimSpace(cfg.Qdrant.URL) == "" {
			log.Warn("QDRANT_URL not set; vector index not configured")
			return vectorstore.Unconfigured{}, nil
		}
		log.Info("Selecting vector store provider",
			"provider", provider,
			"qdrant_url", cfg.Qdrant.URL,
			"qdrant_collection", cfg.Qdrant.Collection,
			"qdrant_namespace_prefix", cfg.Qdrant.NamespacePrefix,
			"qdrant_vector_dim", cfg.Qdrant.VectorDim,
		)
		vs, err := newQdrantVectorStore(ctx, log, cfg.Qdrant)
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		return vectorstore.Instrument(vs, provider, log), nil

	case VectorProviderPinecone:
		if strings.TrimSpace(cfg.PineconeClient.APIKey) == "" {
			log.Warn("PINECONE_API_KEY not set; vector index not configured")
			return vectorstore.Unconfigured{}, nil
		}
		log.Info("Selecting vector store provider",
			"provider", provider,
			"pinecone_index", cfg.Pinecone.IndexName,
			"pinecone_namespace_prefix", cfg.Pinecone.NamespacePrefix,
		)
		pc, err := newPineconeClient(log, cfg.PineconeClient)
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		vs, err := newPineconeVectorStore(ctx, log, pc, cfg.Pinecone)
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		return vectorstore.Instrument(vs, provider, log), nil

	default:
		err := &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		}
		log.Error("Vector store provider selection failed", "provider", provider, "error_code", err.Code, "error", err)
		return nil, err
	}
}

func bootstrapFailed(log *logger.Logger, provider string, err error) error {
	classified := classifyVectorProviderBootstrapError(provider, err)
	log.Error("Vector store provider bootstrap failed",
		"provider", provider,
		"error_code", vectorProviderBootstrapErrorCode(classified),
		"error", classified,
	)
	return classified
}

func classifyVectorProviderBootstrapError(provider string, err error) error {
	wrap := func(code VectorProviderBootstrapErrorCode) error {
		return &VectorProviderBootstrapError{Code: code, Provider: provider, Cause: err}
	}

	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "ready check failed") || strings.Contains(errLower, "connection refused") {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case qdrant.ConfigErrorInvalidURL:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantURL)
		case qdrant.ConfigErrorMissingCollection:
			return wrap(VectorProviderBootstrapErrorMissingQdrantColl)
		case qdrant.ConfigErrorMissingVectorDim:
			return wrap(VectorProviderBootstrapErrorMissingQdrantVector)
		case qdrant.ConfigErrorInvalidVectorDim:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantVector)
		default:
			return wrap(VectorProviderBootstrapErrorQdrantConfigFailed)
		}
	}
	return wrap(VectorProviderBootstrapErrorProviderInitFailed)
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorConnectFailed
}
