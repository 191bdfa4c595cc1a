// Package vectortest provides an in-memory vectorstore.Store for tests.
package vectortest

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
)

// Memory stores vectors per namespace and ranks by cosine similarity. Filters
// support field equality plus numeric $gte and $lte.
type Memory struct {
	mu      sync.Mutex
	data    map[string]map[string]vectorstore.Vector
	upserts int
	FailErr error
}

func NewMemory() *Memory {
	return &Memory{data: map[string]map[string]vectorstore.Vector{}}
}

func (m *Memory) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return m.FailErr
	}
	ns := m.data[namespace]
	if ns == nil {
		ns = map[string]vectorstore.Vector{}
		m.data[namespace] = ns
	}
	for _, v := range vectors {
		if v.ID == "" {
			return errors.New("vector id required")
		}
		ns[v.ID] = v
	}
	m.upserts++
	return nil
}

func (m *Memory) Query(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []vectorstore.Match
	for id, v := range m.data[namespace] {
		if !matches(v.Metadata, filter) {
			continue
		}
		out = append(out, vectorstore.Match{ID: id, Score: cosine(q, v.Values), Metadata: v.Metadata})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *Memory) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.data[namespace], id)
	}
	return nil
}

func (m *Memory) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, v := range m.data[namespace] {
		if matches(v.Metadata, filter) {
			delete(m.data[namespace], id)
		}
	}
	return nil
}

// IDs returns the stored ids in namespace, sorted.
func (m *Memory) IDs(namespace string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data[namespace]))
	for id := range m.data[namespace] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Get(namespace, id string) (vectorstore.Vector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[namespace][id]
	return v, ok
}

func (m *Memory) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

func matches(meta, filter map[string]any) bool {
	for k, want := range filter {
		if ops, ok := want.(map[string]any); ok {
			got, ok := number(meta[k])
			if !ok {
				return false
			}
			for op, v := range ops {
				bound, ok := number(v)
				if !ok {
					return false
				}
				if (op == "$gte" && got < bound) || (op == "$lte" && got > bound) {
					return false
				}
			}
			continue
		}
		if meta[k] != want {
			return false
		}
	}
	return true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
