package pinecone

import (
	"context"
	"fmt"
	"strings"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
)

// upsertBatch stays well under the data plane's 2MB request cap for
// 1536-dim embeddings.
const upsertBatch = 100

type Config struct {
	IndexName       string
	IndexHost       string
	NamespacePrefix string
}

type vectorStore struct {
	log      *logger.Logger
	pc       Client
	host     string
	nsPrefix string
}

// NewVectorStore adapts a pinecone index to vectorstore.Store. When IndexHost
// is empty the host is resolved once through describe_index.
func NewVectorStore(ctx context.Context, log *logger.Logger, pc Client, cfg Config) (vectorstore.Store, error) {
	switch {
	case log == nil:
		return nil, fmt.Errorf("pinecone: logger required")
	case pc == nil:
		return nil, fmt.Errorf("pinecone: client required")
	}
	index := strings.TrimSpace(cfg.IndexName)
	if index == "" {
		return nil, fmt.Errorf("pinecone: PINECONE_INDEX_NAME required")
	}

	host := strings.TrimSpace(cfg.IndexHost)
	if host == "" {
		desc, err := pc.DescribeIndex(ctx, index)
		if err != nil {
			return nil, fmt.Errorf("pinecone: resolve host for %q: %w", index, err)
		}
		host = strings.TrimSpace(desc.Host)
		log.Warn("Resolved pinecone host via describe_index; set PINECONE_INDEX_HOST to skip this call",
			"index_name", index, "index_host", host)
	}

	prefix := strings.TrimSpace(cfg.NamespacePrefix)
	if prefix == "" {
		prefix = "sc"
	}
	return &vectorStore{
		log:      log.With("service", "PineconeVectorStore", "index", index),
		pc:       pc,
		host:     host,
		nsPrefix: prefix,
	}, nil
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	ns := s.namespace(namespace)
	for start := 0; start < len(vectors); start += upsertBatch {
		end := min(start+upsertBatch, len(vectors))
		batch := make([]Vector, 0, end-start)
		for _, v := range vectors[start:end] {
			if strings.TrimSpace(v.ID) == "" {
				return fmt.Errorf("pinecone upsert: vector id required")
			}
			batch = append(batch, Vector{ID: v.ID, Values: v.Values, Metadata: metadata(v.Metadata)})
		}
		if _, err := s.pc.UpsertVectors(ctx, s.host, UpsertRequest{Namespace: ns, Vectors: batch}); err != nil {
			return err
		}
	}
	return nil
}

func (s *vectorStore) Query(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	resp, err := s.pc.Query(ctx, s.host, QueryRequest{
		Namespace:       s.namespace(namespace),
		Vector:          q,
		TopK:            topK,
		Filter:          filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.ID == "" {
			continue
		}
		out = append(out, vectorstore.Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return out, nil
}

func (s *vectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.pc.DeleteVectors(ctx, s.host, DeleteRequest{Namespace: s.namespace(namespace), IDs: ids})
}

func (s *vectorStore) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	if len(filter) == 0 {
		return fmt.Errorf("pinecone delete: filter required")
	}
	return s.pc.DeleteVectors(ctx, s.host, DeleteRequest{Namespace: s.namespace(namespace), Filter: filter})
}

func (s *vectorStore) namespace(ns string) string {
	if ns = strings.TrimSpace(ns); ns != "" {
		return s.nsPrefix + ":" + ns
	}
	return s.nsPrefix
}

// metadata keeps the value kinds pinecone accepts (strings, numbers, bools and
// string lists). Nulls are dropped; anything else is stringified.
func metadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case nil:
		case string, bool, int, int32, int64, float32, float64, []string:
			out[k] = t
		case []any:
			list := make([]string, 0, len(t))
			for _, item := range t {
				if item != nil {
					list = append(list, fmt.Sprint(item))
				}
			}
			out[k] = list
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
