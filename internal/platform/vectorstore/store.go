// Package vectorstore is the similarity-index gateway used by the indexing and
// retrieval steps. Providers live in platform/qdrant and platform/pinecone.
package vectorstore

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("vector index not configured")

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is one ranked query hit; higher Score is more similar.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Store is implemented by every vector index provider. Filters use the
// mongo-style subset understood by both providers: field equality, $eq, $ne,
// $in, $gte, $lte, $and, $or.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	Query(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
	DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error
}

// Unconfigured keeps read paths available without an index: queries return no
// matches, writes fail with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Upsert(context.Context, string, []Vector) error { return ErrNotConfigured }

func (Unconfigured) Query(context.Context, string, []float32, int, map[string]any) ([]Match, error) {
	return []Match{}, nil
}

func (Unconfigured) DeleteIDs(context.Context, string, []string) error { return ErrNotConfigured }

func (Unconfigured) DeleteByFilter(context.Context, string, map[string]any) error {
	return ErrNotConfigured
}

func IsConfigured(s Store) bool {
	if s == nil {
		return false
	}
	_, bad := s.(Unconfigured)
	return !bad
}
